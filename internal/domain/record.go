package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	ConditionNew  = "New"
	ConditionUsed = "Used"

	ShippingNone          = "No Shipping"
	ShippingLocalPickup   = "Local Pickup"
	ShippingUS            = "US Shipping"
	ShippingInternational = "International Shipping"
)

type Record struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Title       string    `gorm:"size:255;index" json:"title"`
	Artist      []string  `gorm:"type:text;serializer:json" json:"artist"`
	AlbumID     string    `gorm:"size:64;index" json:"albumId"`
	Genres      []string  `gorm:"type:text;serializer:json" json:"genres"`
	CoverURL    string    `gorm:"size:512" json:"coverUrl"`
	ReleaseDate string    `gorm:"size:32" json:"releaseDate"`
	Condition   string    `gorm:"size:16;not null" json:"condition" validate:"required,oneof=New Used"`
	Description string    `gorm:"type:text" json:"description"`
	Shipping    string    `gorm:"size:32;not null" json:"shipping" validate:"required,oneof='No Shipping' 'Local Pickup' 'US Shipping' 'International Shipping'"`
	UserID      string    `gorm:"size:36;not null;index" json:"userId" validate:"required"`
	Images      []string  `gorm:"type:text;serializer:json" json:"images"`
	IsTraded    bool      `gorm:"not null;default:false;index" json:"isTraded"`
	CreatedAt   time.Time `json:"timestamp"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate 校验枚举与必填字段，多条错误以 ". " 拼接
func (r *Record) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	msgs := make([]string, 0, len(ves))
	for _, fe := range ves {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("Path `%s` is required", lowerFirst(fe.Field())))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("`%v` is not a valid enum value for path `%s`", fe.Value(), lowerFirst(fe.Field())))
		default:
			msgs = append(msgs, fmt.Sprintf("Path `%s` failed on %s", lowerFirst(fe.Field()), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, ". "))
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// StringList 兼容两种入参：逗号分隔的字符串或 JSON 数组
type StringList []string

func (l *StringList) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*l = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*l = SplitList(s)
		return nil
	}
	var arr []string
	if err := json.Unmarshal(b, &arr); err != nil {
		return fmt.Errorf("expected string or array of strings: %w", err)
	}
	*l = arr
	return nil
}

// SplitList 按逗号切分并去掉首尾空白，丢弃空项
func SplitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type RecordFilter struct {
	Query         string
	Genre         string
	OwnerID       string
	ExcludeOwner  string
	IncludeTraded bool
	Offset        int
	Limit         int // 0 表示不分页
}

type RecordRepository interface {
	Create(ctx context.Context, r *Record) error
	FindByID(ctx context.Context, id string) (*Record, error)
	FindByIDForUpdate(ctx context.Context, id string) (*Record, error)
	FindByIDs(ctx context.Context, ids []string) ([]Record, error)
	List(ctx context.Context, f RecordFilter) ([]Record, int64, error)
	UpdateFields(ctx context.Context, r *Record, fields ...string) error
	MarkTraded(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}
