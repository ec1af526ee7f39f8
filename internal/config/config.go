package config

import (
	"errors"
	"fmt"
	"net/mail"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process and the
// operator CLI. All values come from env (or an env-file loaded by the
// process runner). No business logic should read raw environment variables.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	SendGrid  SendGridConfig
	RabbitMQ  RabbitMQConfig
	MinIO     MinIOConfig
	Legal     LegalConfig
	Billing   BillingConfig
	Reporting ReportingConfig
}

type AppConfig struct {
	Env  string
	Port int

	// StoreDriver selects case persistence: postgres or memory.
	// memory is refused in production.
	StoreDriver string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// DevLogin enables POST /v1/auth/login, which issues tokens for any
	// claimed identity. Never allowed in production.
	DevLogin bool
}

type SendGridConfig struct {
	APIKey    string
	FromName  string
	FromEmail string
}

type RabbitMQConfig struct {
	URL          string
	BillingQueue string
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type LegalConfig struct {
	NOVDeadline time.Duration
	NOODeadline time.Duration
}

type BillingConfig struct {
	Currency    string
	RedriveCron string
}

type ReportingConfig struct {
	QueueCountsTTL time.Duration
}

const day = 24 * time.Hour

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}
	c.App.StoreDriver = strings.ToLower(strings.TrimSpace(os.Getenv("STORE_DRIVER")))

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := optInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := optInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	{
		n, err := optInt("REDIS_DB")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.DB = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate() based on env.
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")
	c.Auth.DevLogin = optBool("AUTH_DEV_LOGIN")

	c.SendGrid.APIKey = os.Getenv("SENDGRID_API_KEY")
	c.SendGrid.FromName = strings.TrimSpace(os.Getenv("SENDGRID_FROM_NAME"))
	c.SendGrid.FromEmail = strings.TrimSpace(os.Getenv("SENDGRID_FROM_EMAIL"))

	c.RabbitMQ.URL = strings.TrimSpace(os.Getenv("RABBITMQ_URL"))
	c.RabbitMQ.BillingQueue = strings.TrimSpace(os.Getenv("BILLING_QUEUE"))

	c.MinIO.Endpoint = strings.TrimSpace(os.Getenv("MINIO_ENDPOINT"))
	c.MinIO.AccessKey = strings.TrimSpace(os.Getenv("MINIO_ACCESS_KEY"))
	c.MinIO.SecretKey = os.Getenv("MINIO_SECRET_KEY")
	c.MinIO.Bucket = strings.TrimSpace(os.Getenv("MINIO_BUCKET"))
	c.MinIO.UseSSL = optBool("MINIO_USE_SSL")

	{
		n, err := optInt("LEGAL_NOV_DEADLINE_DAYS")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Legal.NOVDeadline = time.Duration(n) * day
	}
	{
		n, err := optInt("LEGAL_NOO_DEADLINE_DAYS")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Legal.NOODeadline = time.Duration(n) * day
	}

	c.Billing.Currency = strings.ToUpper(strings.TrimSpace(os.Getenv("BILLING_CURRENCY")))
	c.Billing.RedriveCron = strings.TrimSpace(os.Getenv("BILLING_REDRIVE_CRON"))

	c.Reporting.QueueCountsTTL = mustDuration("QUEUE_COUNTS_TTL")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every problem at once and fills in defaults.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.StoreDriver == "" {
		c.App.StoreDriver = "postgres"
	}
	switch c.App.StoreDriver {
	case "postgres":
	case "memory":
		if c.IsProduction() {
			errs = append(errs, errors.New("STORE_DRIVER=memory is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be one of postgres, memory, got %q", c.App.StoreDriver))
	}

	if c.UsesPostgres() {
		errs = append(errs, c.validateDB()...)
		if c.Redis.Host == "" {
			errs = append(errs, errors.New("REDIS_HOST is required"))
		}
	}
	if c.Redis.Host != "" {
		if c.Redis.Port == 0 {
			c.Redis.Port = 6379
		}
		if c.Redis.Port < 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
		if c.Auth.DevLogin {
			errs = append(errs, errors.New("AUTH_DEV_LOGIN must be off in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * day
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.SendGrid.APIKey != "" || c.IsProduction() {
		if c.SendGrid.APIKey == "" {
			errs = append(errs, errors.New("SENDGRID_API_KEY is required in production"))
		}
		if _, err := mail.ParseAddress(c.SendGrid.FromEmail); err != nil {
			errs = append(errs, fmt.Errorf("SENDGRID_FROM_EMAIL must be an email address, got %q", c.SendGrid.FromEmail))
		}
	}
	if c.SendGrid.FromName == "" {
		c.SendGrid.FromName = "EMB Legal Unit"
	}

	if c.IsProduction() && c.RabbitMQ.URL == "" {
		errs = append(errs, errors.New("RABBITMQ_URL is required in production"))
	}
	if c.RabbitMQ.BillingQueue == "" {
		c.RabbitMQ.BillingQueue = "billing.penalties"
	}

	if c.MinIO.Endpoint != "" || c.IsProduction() {
		if c.MinIO.Endpoint == "" {
			errs = append(errs, errors.New("MINIO_ENDPOINT is required in production"))
		}
		if c.MinIO.AccessKey == "" || c.MinIO.SecretKey == "" {
			errs = append(errs, errors.New("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required with MINIO_ENDPOINT"))
		}
	}
	if c.MinIO.Bucket == "" {
		c.MinIO.Bucket = "inspection-checklists"
	}

	if c.Legal.NOVDeadline < 0 || c.Legal.NOODeadline < 0 {
		errs = append(errs, errors.New("LEGAL_NOV_DEADLINE_DAYS and LEGAL_NOO_DEADLINE_DAYS must not be negative"))
	}
	if c.Legal.NOVDeadline == 0 {
		c.Legal.NOVDeadline = 30 * day
	}
	if c.Legal.NOODeadline == 0 {
		c.Legal.NOODeadline = 60 * day
	}

	if c.Billing.Currency == "" {
		c.Billing.Currency = "PHP"
	} else if len(c.Billing.Currency) != 3 {
		errs = append(errs, fmt.Errorf("BILLING_CURRENCY must be an ISO 4217 code, got %q", c.Billing.Currency))
	}
	if c.Billing.RedriveCron == "" {
		c.Billing.RedriveCron = "@every 1m"
	}

	if c.Reporting.QueueCountsTTL <= 0 {
		c.Reporting.QueueCountsTTL = 15 * time.Second
	}

	return joinErrors(errs)
}

func (c *Config) validateDB() []error {
	var errs []error
	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port == 0 {
		c.DB.Port = 5432
	}
	if c.DB.Port < 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}
	return errs
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) UsesPostgres() bool {
	return c.App.StoreDriver == "" || c.App.StoreDriver == "postgres"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optInt(key string) (int, error) {
	if strings.TrimSpace(os.Getenv(key)) == "" {
		return 0, nil
	}
	return mustInt(key)
}

func optBool(key string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return err == nil && b
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
