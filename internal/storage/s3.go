// Package storage 生成对象存储的预签名上传地址，二进制不经过本服务
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"vinyl-exchange/internal/domain"
)

const DefaultUploadTTL = 300 * time.Second

type Options struct {
	Endpoint      string // s3.amazonaws.com 或自建 minio 地址
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	PublicBaseURL string // 为空则拼 AWS 虚拟主机风格地址
	TTL           time.Duration
}

type Signer struct {
	client     *minio.Client
	bucket     string
	region     string
	publicBase string
	ttl        time.Duration
	now        func() time.Time
}

// Upload 预签名结果；ImageURL 上传成功后挂到记录的 images
type Upload struct {
	UploadURL string `json:"uploadUrl"`
	ImageURL  string `json:"imageUrl"`
	Key       string `json:"key"`
}

func New(o Options) (*Signer, error) {
	if o.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	if o.Region == "" {
		// 指定 region 后签名不需要请求 bucket location
		return nil, errors.New("storage region is required")
	}
	endpoint := o.Endpoint
	if endpoint == "" {
		endpoint = "s3.amazonaws.com"
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(o.AccessKey, o.SecretKey, ""),
		Secure: o.UseSSL,
		Region: o.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init storage client: %w", err)
	}
	ttl := o.TTL
	if ttl <= 0 {
		ttl = DefaultUploadTTL
	}
	return &Signer{
		client:     client,
		bucket:     o.Bucket,
		region:     o.Region,
		publicBase: strings.TrimRight(o.PublicBaseURL, "/"),
		ttl:        ttl,
		now:        time.Now,
	}, nil
}

// UploadURL 生成 PUT 预签名地址，key = {albumId}_{毫秒时间戳}_{fileName}
func (s *Signer) UploadURL(ctx context.Context, albumID, fileName, fileType string) (*Upload, error) {
	albumID = strings.TrimSpace(albumID)
	fileName = strings.TrimSpace(fileName)
	fileType = strings.TrimSpace(fileType)
	if albumID == "" || fileName == "" || fileType == "" {
		return nil, fmt.Errorf("%w: Missing required query parameters", domain.ErrValidation)
	}

	key := albumID + "_" + strconv.FormatInt(s.now().UnixMilli(), 10) + "_" + fileName
	hdr := http.Header{}
	hdr.Set("Content-Type", fileType)

	u, err := s.client.PresignHeader(ctx, http.MethodPut, s.bucket, key, s.ttl, nil, hdr)
	if err != nil {
		return nil, fmt.Errorf("%w: presign upload: %v", domain.ErrUpstream, err)
	}
	return &Upload{UploadURL: u.String(), ImageURL: s.publicURL(key), Key: key}, nil
}

func (s *Signer) publicURL(key string) string {
	escaped := (&url.URL{Path: key}).EscapedPath()
	if s.publicBase != "" {
		return s.publicBase + "/" + escaped
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, escaped)
}
