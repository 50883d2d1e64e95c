package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type HTTP struct {
	Host              string
	Port              int
	ReadTimeoutSec    int
	WriteTimeoutSec   int
	IdleTimeoutSec    int
	RequestTimeoutSec int
	RateLimitRPS      float64
	RateLimitBurst    int
	MaxConcurrent     int64
	CORSOrigins       []string
}

type AdminHTTP struct {
	Host string
	Port int
}

type App struct {
	Name  string
	Env   string
	HTTP  HTTP
	Admin AdminHTTP
}

type Log struct {
	Level string
	JSON  bool
	File  string // 为空则只输出到 stdout
}

type JWT struct {
	Secret            string
	Issuer            string
	AccessTokenTTLMin int
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// 目录接口缓存时长（秒）
	CatalogTTLSec int `mapstructure:"catalogTTLSec"`
}

type DB struct {
	Driver             string
	DSN                string
	Username           string
	Password           string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeMin int
	AutoMigrate        bool
	LogLevel           string
}

// Catalog 外部音乐目录（Spotify Web API 兼容）
type Catalog struct {
	ClientID     string `mapstructure:"clientID"`
	ClientSecret string `mapstructure:"clientSecret"`
	RedirectURI  string `mapstructure:"redirectURI"`
	TokenURL     string `mapstructure:"tokenURL"`
	BaseURL      string `mapstructure:"baseURL"`
	TimeoutSec   int    `mapstructure:"timeoutSec"`
}

// Storage S3 兼容对象存储
type Storage struct {
	Endpoint      string `mapstructure:"endpoint"`
	Region        string `mapstructure:"region"`
	Bucket        string `mapstructure:"bucket"`
	AccessKey     string `mapstructure:"accessKey"`
	SecretKey     string `mapstructure:"secretKey"`
	UseSSL        bool   `mapstructure:"useSSL"`
	PublicBaseURL string `mapstructure:"publicBaseURL"`
	UploadTTLSec  int    `mapstructure:"uploadTTLSec"`
}

type Config struct {
	App     App
	Log     Log
	JWT     JWT
	DB      DB
	Redis   Redis   `mapstructure:"redis"`
	Catalog Catalog `mapstructure:"catalog"`
	Storage Storage `mapstructure:"storage"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "vinyl-exchange")
	v.SetDefault("app.env", "local")
	v.SetDefault("app.http.host", "0.0.0.0")
	v.SetDefault("app.http.port", 5000)
	v.SetDefault("app.http.readTimeoutSec", 5)
	v.SetDefault("app.http.writeTimeoutSec", 15)
	v.SetDefault("app.http.idleTimeoutSec", 60)
	v.SetDefault("app.http.requestTimeoutSec", 10)
	v.SetDefault("app.http.rateLimitRPS", 200)
	v.SetDefault("app.http.rateLimitBurst", 400)
	v.SetDefault("app.http.maxConcurrent", 300)
	v.SetDefault("app.admin.host", "127.0.0.1")
	v.SetDefault("app.admin.port", 5001)
	v.SetDefault("log.level", "info")
	v.SetDefault("jwt.issuer", "vinyl-exchange")
	v.SetDefault("jwt.accessTokenTTLMin", 1440)
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "vinyl.db")
	v.SetDefault("db.autoMigrate", true)
	v.SetDefault("db.logLevel", "warn")
	v.SetDefault("redis.catalogTTLSec", 600)
	v.SetDefault("catalog.tokenURL", "https://accounts.spotify.com/api/token")
	v.SetDefault("catalog.baseURL", "https://api.spotify.com/v1")
	v.SetDefault("catalog.timeoutSec", 10)
	v.SetDefault("storage.endpoint", "s3.amazonaws.com")
	v.SetDefault("storage.useSSL", true)
	v.SetDefault("storage.uploadTTLSec", 300)

	// 无默认值的键也要登记，AutomaticEnv 才能在 Unmarshal 时生效
	for _, k := range []string{
		"log.json", "log.file",
		"jwt.secret",
		"db.username", "db.password",
		"redis.addr", "redis.password", "redis.db",
		"catalog.clientID", "catalog.clientSecret", "catalog.redirectURI",
		"storage.region", "storage.bucket", "storage.accessKey", "storage.secretKey", "storage.publicBaseURL",
	} {
		if !v.IsSet(k) {
			v.SetDefault(k, "")
		}
	}
}

// Load 读取 YAML（可选）并用 APP_ 前缀的环境变量覆盖，如 APP_JWT_SECRET
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt.secret is required (APP_JWT_SECRET)")
	}
	return &c, nil
}
