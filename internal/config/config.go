package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
)

// Config holds configuration for the analysis service and the billing proxy.
type Config struct {
	HTTP         HTTPConfig         `mapstructure:"http"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Queue        QueueConfig        `mapstructure:"queue"`
	Provider     ProviderConfig     `mapstructure:"provider"`
	Judge        JudgeConfig        `mapstructure:"judge"`
	Budget       BudgetConfig       `mapstructure:"budget"`
	BillingProxy BillingProxyConfig `mapstructure:"billing_proxy"`
	PayI         PayIConfig         `mapstructure:"payi"`
	Audit        AuditConfig        `mapstructure:"audit"`
	RateLimit    RateLimitConfig    `mapstructure:"ratelimit"`
	Log          LogConfig          `mapstructure:"log"`
}

// HTTPConfig holds listener settings.
type HTTPConfig struct {
	Port            string        `mapstructure:"port"`
	ProxyPort       string        `mapstructure:"proxy_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
}

// AuthConfig holds JWT settings. An empty secret disables authentication.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres or sqlite
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig holds Redis connection settings. An empty address disables Redis.
type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// QueueConfig holds async worker settings
type QueueConfig struct {
	UseRedis     bool          `mapstructure:"use_redis"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// ProviderConfig holds provider-related settings
type ProviderConfig struct {
	RequestTimeout  time.Duration `mapstructure:"request_timeout"` // per provider call
	DefaultProvider string        `mapstructure:"default_provider"`
	DefaultModel    string        `mapstructure:"default_model"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	MasterKey       string        `mapstructure:"master_key"` // shared credential encryption key
	Tenant          string        `mapstructure:"tenant"`     // credential owner used for resolution

	CredentialKeys CredentialKeys `mapstructure:"credential_keys"`

	AnthropicAPIKey    string `mapstructure:"anthropic_api_key"`
	AnthropicBaseURL   string `mapstructure:"anthropic_base_url"`
	OpenAIAPIKey       string `mapstructure:"openai_api_key"`
	OpenAIBaseURL      string `mapstructure:"openai_base_url"`
	GoogleAPIKey       string `mapstructure:"google_api_key"`
	GoogleBaseURL      string `mapstructure:"google_base_url"`
	XAIAPIKey          string `mapstructure:"xai_api_key"`
	XAIBaseURL         string `mapstructure:"xai_base_url"`
	AWSAccessKeyID     string `mapstructure:"aws_access_key_id"`
	AWSSecretAccessKey string `mapstructure:"aws_secret_access_key"`
	AWSRegion          string `mapstructure:"aws_region"`
}

// CredentialKeys are optional per-provider encryption keys; the master key is the fallback.
type CredentialKeys struct {
	Anthropic string `mapstructure:"anthropic"`
	OpenAI    string `mapstructure:"openai"`
	Google    string `mapstructure:"google"`
	XAI       string `mapstructure:"xai"`
	Bedrock   string `mapstructure:"bedrock"`
}

// ByProvider returns the non-empty keys indexed by provider tag.
func (k CredentialKeys) ByProvider() map[string]string {
	out := make(map[string]string)
	for name, key := range map[string]string{
		"anthropic": k.Anthropic,
		"openai":    k.OpenAI,
		"google":    k.Google,
		"xai":       k.XAI,
		"bedrock":   k.Bedrock,
	} {
		if key != "" {
			out[name] = key
		}
	}
	return out
}

// JudgeConfig holds verification settings.
type JudgeConfig struct {
	Provider               string  `mapstructure:"provider"`
	Model                  string  `mapstructure:"model"`
	MaxRetries             int     `mapstructure:"max_retries"`
	AutoImprove            bool    `mapstructure:"auto_improve"`
	MinOverallScore        float64 `mapstructure:"min_overall_score"`
	MinAccuracyScore       float64 `mapstructure:"min_accuracy_score"`
	MaxUnverifiedClaims    int     `mapstructure:"max_unverified_claims"`
	MaxUnverifiableSources int     `mapstructure:"max_unverifiable_sources"`
}

// BudgetConfig holds the default spend limits. Stored budget configuration wins.
type BudgetConfig struct {
	MonthlyLimitUSD  float64 `mapstructure:"monthly_limit_usd"`
	DailyLimitUSD    float64 `mapstructure:"daily_limit_usd"`
	WarningThreshold float64 `mapstructure:"warning_threshold"`
}

// BillingProxyConfig points the service at an external billing proxy.
type BillingProxyConfig struct {
	URL            string        `mapstructure:"url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	UseCaseVersion int           `mapstructure:"use_case_version"`
	AccountName    string        `mapstructure:"account_name"`
	LimitIDs       []string      `mapstructure:"limit_ids"`
}

// PayIConfig configures the billing proxy service itself.
type PayIConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	ProxyPath      string `mapstructure:"proxy_path"`
	ServiceName    string `mapstructure:"service_name"`
	Environment    string `mapstructure:"environment"`
	Debug          bool   `mapstructure:"debug"`
	DefaultUseCase string `mapstructure:"default_use_case"`
	UseCaseVersion int    `mapstructure:"use_case_version"`
}

// AuditConfig holds configuration for the S3-based audit sink
type AuditConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	BufferSize    int           `mapstructure:"buffer_size"`
	FlushSize     int           `mapstructure:"flush_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	S3Bucket      string        `mapstructure:"s3_bucket"`
	S3Region      string        `mapstructure:"s3_region"`
	S3Prefix      string        `mapstructure:"s3_prefix"`
	S3Endpoint    string        `mapstructure:"s3_endpoint"` // S3-compatible stores such as MinIO
	PodName       string        `mapstructure:"pod_name"`
}

// RateLimitConfig limits analysis requests per user.
type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	RequestsPerWindow int           `mapstructure:"requests_per_window"`
	Window            time.Duration `mapstructure:"window"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// vendor key names that do not follow the section_key convention
var envBindings = map[string][]string{
	"provider.anthropic_api_key":     {"ANTHROPIC_API_KEY"},
	"provider.anthropic_base_url":    {"ANTHROPIC_BASE_URL"},
	"provider.openai_api_key":        {"OPENAI_API_KEY"},
	"provider.openai_base_url":       {"OPENAI_BASE_URL"},
	"provider.google_api_key":        {"GOOGLE_AI_API_KEY", "GOOGLE_API_KEY"},
	"provider.google_base_url":       {"GOOGLE_BASE_URL"},
	"provider.xai_api_key":           {"XAI_API_KEY"},
	"provider.xai_base_url":          {"XAI_BASE_URL"},
	"provider.aws_access_key_id":     {"AWS_ACCESS_KEY_ID"},
	"provider.aws_secret_access_key": {"AWS_SECRET_ACCESS_KEY"},
	"provider.aws_region":            {"AWS_REGION", "AWS_DEFAULT_REGION"},
	"provider.master_key":            {"CREDENTIAL_ENCRYPTION_KEY"},

	"provider.credential_keys.anthropic": {"CREDENTIAL_KEY_ANTHROPIC"},
	"provider.credential_keys.openai":    {"CREDENTIAL_KEY_OPENAI"},
	"provider.credential_keys.google":    {"CREDENTIAL_KEY_GOOGLE"},
	"provider.credential_keys.xai":       {"CREDENTIAL_KEY_XAI"},
	"provider.credential_keys.bedrock":   {"CREDENTIAL_KEY_BEDROCK"},

	"provider.default_provider": {"DEFAULT_AI_PROVIDER"},
	"provider.default_model":    {"DEFAULT_AI_MODEL"},
	"provider.tenant":           {"TENANT_ID"},
	"database.url":              {"DATABASE_URL"},
	"auth.jwt_secret":           {"JWT_SECRET"},
	"billing_proxy.url":         {"BILLING_PROXY_URL", "PAYI_PROXY_URL"},
	"judge.provider":            {"JUDGE_PROVIDER"},
	"judge.model":               {"JUDGE_MODEL"},
	"payi.service_name":         {"SERVICE_NAME"},
	"payi.environment":          {"ENVIRONMENT"},
	"payi.debug":                {"DEBUG"},
	"payi.default_use_case":     {"DEFAULT_USE_CASE"},
	"payi.use_case_version":     {"USE_CASE_VERSION"},
	"audit.pod_name":            {"POD_NAME"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", "8080")
	v.SetDefault("http.proxy_port", "8000")
	v.SetDefault("http.read_timeout", 30*time.Second)
	v.SetDefault("http.write_timeout", 180*time.Second)
	v.SetDefault("http.shutdown_timeout", 15*time.Second)
	v.SetDefault("http.allowed_origins", []string{"*"})
	v.SetDefault("http.max_upload_bytes", int64(64<<20))

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.conn_max_idle_time", 1*time.Minute)
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)

	v.SetDefault("queue.use_redis", false)
	v.SetDefault("queue.batch_size", 100)
	v.SetDefault("queue.batch_timeout", 5*time.Second)
	v.SetDefault("queue.max_retries", 3)
	v.SetDefault("queue.retry_backoff", 1*time.Second)

	v.SetDefault("provider.request_timeout", 60*time.Second)
	v.SetDefault("provider.default_provider", "anthropic")
	v.SetDefault("provider.default_model", "")
	v.SetDefault("provider.max_tokens", 2048)
	v.SetDefault("provider.tenant", "default")
	for _, key := range []string{
		"anthropic_api_key", "anthropic_base_url", "openai_api_key", "openai_base_url",
		"google_api_key", "google_base_url", "xai_api_key", "xai_base_url",
		"aws_access_key_id", "aws_secret_access_key", "aws_region", "master_key",
	} {
		v.SetDefault("provider."+key, "")
	}
	for _, name := range []string{"anthropic", "openai", "google", "xai", "bedrock"} {
		v.SetDefault("provider.credential_keys."+name, "")
	}

	v.SetDefault("judge.provider", "")
	v.SetDefault("judge.model", "")
	v.SetDefault("judge.max_retries", 2)
	v.SetDefault("judge.auto_improve", true)
	v.SetDefault("judge.min_overall_score", 7.0)
	v.SetDefault("judge.min_accuracy_score", 7.0)
	v.SetDefault("judge.max_unverified_claims", 3)
	v.SetDefault("judge.max_unverifiable_sources", 2)

	v.SetDefault("budget.monthly_limit_usd", 0.0)
	v.SetDefault("budget.daily_limit_usd", 0.0)
	v.SetDefault("budget.warning_threshold", 0.8)

	v.SetDefault("billing_proxy.url", "")
	v.SetDefault("billing_proxy.timeout", 120*time.Second)
	v.SetDefault("billing_proxy.use_case_version", 2)
	v.SetDefault("billing_proxy.account_name", "")
	v.SetDefault("billing_proxy.limit_ids", []string{})

	v.SetDefault("payi.api_key", "")
	v.SetDefault("payi.base_url", "https://api.pay-i.com")
	v.SetDefault("payi.proxy_path", "/api/v1/proxy/anthropic")
	v.SetDefault("payi.service_name", "trailblazer-payi-proxy")
	v.SetDefault("payi.environment", "development")
	v.SetDefault("payi.debug", false)
	v.SetDefault("payi.default_use_case", "trail_analysis")
	v.SetDefault("payi.use_case_version", 2)

	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.buffer_size", 10000)
	v.SetDefault("audit.flush_size", 500)
	v.SetDefault("audit.flush_interval", 5*time.Minute)
	v.SetDefault("audit.s3_bucket", "")
	v.SetDefault("audit.s3_region", "us-east-1")
	v.SetDefault("audit.s3_prefix", "audit/")
	v.SetDefault("audit.s3_endpoint", "")
	v.SetDefault("audit.pod_name", "trailblazer-0")

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.requests_per_window", 30)
	v.SetDefault("ratelimit.window", time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads configuration from an optional .env file, an optional
// trailblazer.yaml and the process environment, in increasing precedence.
func Load(configPaths ...string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "failed to load .env file")
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("trailblazer")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	for _, p := range configPaths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "failed to read config file")
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envBindings {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return nil, eris.Wrapf(err, "failed to bind env for %s", key)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, eris.Wrap(err, "failed to decode config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return eris.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	if c.Judge.MaxRetries < 0 {
		return eris.New("judge max retries must not be negative")
	}
	if c.Budget.WarningThreshold <= 0 || c.Budget.WarningThreshold > 1 {
		return eris.Errorf("budget warning threshold must be in (0, 1], got %v", c.Budget.WarningThreshold)
	}
	if c.Provider.RequestTimeout <= 0 {
		return eris.New("provider request timeout must be positive")
	}
	return nil
}
