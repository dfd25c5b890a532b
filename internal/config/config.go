package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"

	ImagesDisk = "disk"
	ImagesS3   = "s3"

	CartModeDocument = "document"
	CartModeLocked   = "locked"
	CartModeAtomic   = "atomic"
)

type Config struct {
	Env     string `yaml:"env" env:"ENV" env-default:"local" env-description:"Environment"`
	ApiPort int    `yaml:"api_port" env:"PORT" env-default:"4000"`
	ApiHost string `yaml:"api_host" env:"API_HOST" env-default:"localhost"`
	HTTP    `yaml:"http"`
	JWT     `yaml:"jwt"`
	Storage `yaml:"storage"`
	Cart    `yaml:"cart"`
	Images  `yaml:"images"`
	CORS    `yaml:"cors"`
}

type HTTP struct {
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"10s"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
}

type JWT struct {
	Secret string `yaml:"secret" env:"JWT_SECRET" env-required:"true"`
	// TTL of zero issues tokens that never expire.
	TTL time.Duration `yaml:"ttl" env:"JWT_TTL" env-default:"0s"`
}

type Storage struct {
	Driver   string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"postgres"`
	Postgres `yaml:"postgres"`
	SQLite   `yaml:"sqlite"`
	Mongo    `yaml:"mongo"`
}

type Postgres struct {
	Host string `yaml:"host" env:"POSTGRES_HOST" env-default:"localhost"`
	Port string `yaml:"port" env:"POSTGRES_PORT" env-default:"5433"`
	User string `yaml:"user" env:"POSTGRES_USER" env-default:"test"`
	Pass string `yaml:"pass" env:"POSTGRES_PASSWORD" env-default:"12345"`
	Db   string `yaml:"db" env:"POSTGRES_DB" env-default:"test_db"`
	// MigrationsTable is the golang-migrate bookkeeping table.
	MigrationsTable string `yaml:"migrations_table" env:"POSTGRES_MIGRATIONS_TABLE" env-default:"migrations"`
	AutoMigrate     bool   `yaml:"auto_migrate" env:"POSTGRES_AUTO_MIGRATE" env-default:"false"`
}

func (p Postgres) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Pass),
		Host:     p.Host + ":" + p.Port,
		Path:     p.Db,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

type SQLite struct {
	Path string `yaml:"path" env:"SQLITE_PATH" env-default:"shopper.db"`
}

type Mongo struct {
	URI      string `yaml:"uri" env:"MONGO_URI" env-default:"mongodb://localhost:27017"`
	Database string `yaml:"database" env:"MONGO_DATABASE" env-default:"shopper"`
}

type Cart struct {
	Mode string `yaml:"mode" env:"CART_MODE" env-default:"atomic"`
}

type Images struct {
	Backend       string `yaml:"backend" env:"IMAGES_BACKEND" env-default:"disk"`
	Dir           string `yaml:"dir" env:"IMAGES_DIR" env-default:"upload/images"`
	URLPrefix     string `yaml:"url_prefix" env:"IMAGES_URL_PREFIX" env-default:"/images"`
	MaxUploadSize int64  `yaml:"max_upload_size" env:"IMAGES_MAX_UPLOAD_SIZE" env-default:"10485760"`
	S3            `yaml:"s3"`
}

// Route is the path the API serves disk uploads under, taken from the path
// part of URLPrefix: "/images" and "http://localhost:4000/images" both give
// "/images/". It is empty when URLPrefix has no path.
func (i Images) Route() string {
	path := i.URLPrefix
	if u, err := url.Parse(i.URLPrefix); err == nil && u.Host != "" {
		path = u.Path
	}

	path = strings.Trim(path, "/")
	if path == "" {
		return ""
	}
	return "/" + path + "/"
}

type S3 struct {
	Bucket    string `yaml:"bucket" env:"S3_BUCKET"`
	Region    string `yaml:"region" env:"S3_REGION" env-default:"us-east-1"`
	Endpoint  string `yaml:"endpoint" env:"S3_ENDPOINT"`
	AccessKey string `yaml:"access_key" env:"S3_ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"S3_SECRET_KEY"`
	PublicURL string `yaml:"public_url" env:"S3_PUBLIC_URL"`
}

type CORS struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-separator:"," env-default:"http://localhost:3000"`
}

func MustLoad() *Config {
	cfg, err := Load(fetchConfigPath())
	if err != nil {
		panic("Failed to read config: " + err.Error())
	}

	return cfg
}

// Load reads the YAML file at path (if any) and applies environment
// overrides. Without a path only the environment is used.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", path)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, err
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		errs = append(errs, fmt.Errorf("unknown env %q", c.Env))
	}

	switch c.Storage.Driver {
	case DriverPostgres, DriverSQLite, DriverMongo:
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}

	switch c.Cart.Mode {
	case CartModeDocument, CartModeLocked, CartModeAtomic:
	default:
		errs = append(errs, fmt.Errorf("unknown cart mode %q", c.Cart.Mode))
	}

	switch c.Images.Backend {
	case ImagesDisk:
		if c.Images.Route() == "" {
			errs = append(errs, fmt.Errorf("images.url_prefix %q needs a path to serve uploads under", c.Images.URLPrefix))
		}
	case ImagesS3:
		if c.Images.S3.Bucket == "" {
			errs = append(errs, errors.New("images.s3.bucket is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown images backend %q", c.Images.Backend))
	}

	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt secret is required"))
	}

	return errors.Join(errs...)
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
