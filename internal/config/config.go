package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/thoas/go-funk"
)

const (
	UnmatchedPolicyTolerate = "tolerate"
	UnmatchedPolicyFail     = "fail"

	DispatcherLocal = "local"
	DispatcherRiver = "river"

	StorageS3     = "s3"
	StorageMemory = "memory"
)

var singleConfig *Config = nil

type Config struct {
	Database *dbConfig
	Service  *svcConfig
	Riskuity *riskuityConfig
	Storage  *storageConfig
	Report   *reportConfig
	Webhook  *webhookConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"pgsql"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"cortap"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	Address         string        `envconfig:"CORTAP_ADDRESS" default:":8080"`
	MetricsAddress  string        `envconfig:"CORTAP_METRICS_ADDRESS" default:":8081"`
	BaseUrl         string        `envconfig:"CORTAP_BASE_URL" default:"http://localhost:8080"`
	LogLevel        string        `envconfig:"CORTAP_LOG_LEVEL" default:"info"`
	CorsOrigins     []string      `envconfig:"CORTAP_CORS_ORIGINS" default:"https://riskuity.com"`
	Dispatcher      string        `envconfig:"CORTAP_JOB_DISPATCHER" default:"local"`
	Workers         int           `envconfig:"CORTAP_JOB_WORKERS" default:"4"`
	JobRetention    time.Duration `envconfig:"CORTAP_JOB_RETENTION" default:"168h"`
	JanitorInterval time.Duration `envconfig:"CORTAP_JANITOR_INTERVAL" default:"1h"`
	MigrationFolder string        `envconfig:"CORTAP_MIGRATIONS_FOLDER" default:""`
	Auth            Auth
}

type Auth struct {
	AuthenticationType string `envconfig:"CORTAP_AUTH" default:"bearer"`
	JwksURL            string `envconfig:"CORTAP_AUTH_JWKS_URL" default:""`
}

type riskuityConfig struct {
	BaseUrl    string        `envconfig:"RISKUITY_BASE_URL" default:"https://api.riskuity.com/v1"`
	Timeout    time.Duration `envconfig:"RISKUITY_TIMEOUT" default:"10s"`
	MaxRetries int           `envconfig:"RISKUITY_MAX_RETRIES" default:"3"`
	PageSize   int           `envconfig:"RISKUITY_PAGE_SIZE" default:"1000"`
}

type storageConfig struct {
	Type        string        `envconfig:"CORTAP_STORAGE_TYPE" default:"s3"`
	Endpoint    string        `envconfig:"CORTAP_S3_ENDPOINT" default:"s3.amazonaws.com"`
	Bucket      string        `envconfig:"CORTAP_S3_BUCKET" default:"cortap-reports"`
	Region      string        `envconfig:"CORTAP_S3_REGION" default:"us-east-1"`
	AccessKey   string        `envconfig:"CORTAP_S3_ACCESS_KEY" default:""`
	SecretKey   string        `envconfig:"CORTAP_S3_SECRET_KEY" default:""`
	UseSSL      bool          `envconfig:"CORTAP_S3_USE_SSL" default:"true"`
	DownloadTTL time.Duration `envconfig:"CORTAP_DOWNLOAD_URL_TTL" default:"24h"`
}

type reportConfig struct {
	Timeout              time.Duration `envconfig:"CORTAP_REPORT_TIMEOUT" default:"5m"`
	Format               string        `envconfig:"CORTAP_REPORT_FORMAT" default:"xlsx"`
	DeficiencyKeywords   []string      `envconfig:"CORTAP_DEFICIENCY_KEYWORDS" default:"fail,deficient,non-compliant,violation"`
	DeficientStatusCodes []string      `envconfig:"CORTAP_DEFICIENT_STATUS_CODES" default:"D,DEFICIENT,FAIL,FAILED,NON-COMPLIANT"`
	DeficiencyNegations  []string      `envconfig:"CORTAP_DEFICIENCY_NEGATIONS" default:"non,no,not"`
	UnmatchedPolicy      string        `envconfig:"CORTAP_UNMATCHED_POLICY" default:"tolerate"`
}

type webhookConfig struct {
	Secret         string        `envconfig:"CORTAP_WEBHOOK_SECRET" default:""`
	AttemptTimeout time.Duration `envconfig:"CORTAP_WEBHOOK_ATTEMPT_TIMEOUT" default:"30s"`
	MaxAttempts    int           `envconfig:"CORTAP_WEBHOOK_MAX_ATTEMPTS" default:"5"`
	InitialBackoff time.Duration `envconfig:"CORTAP_WEBHOOK_INITIAL_BACKOFF" default:"1s"`
}

func New() (*Config, error) {
	if singleConfig == nil {
		cfg := new(Config)
		if err := envconfig.Process("", cfg); err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		singleConfig = cfg
	}
	return singleConfig, nil
}

// NewDefault returns the built-in defaults backed by an in-memory sqlite
// database. It never reads the environment and carries no webhook secret, so
// callers set Webhook.Secret before validating.
func NewDefault() *Config {
	return &Config{
		Database: &dbConfig{
			Type: "sqlite",
			Name: "file::memory:?cache=shared",
		},
		Service: &svcConfig{
			Address:         ":8080",
			MetricsAddress:  ":8081",
			BaseUrl:         "http://localhost:8080",
			LogLevel:        "info",
			CorsOrigins:     []string{"https://riskuity.com"},
			Dispatcher:      DispatcherLocal,
			Workers:         4,
			JobRetention:    7 * 24 * time.Hour,
			JanitorInterval: time.Hour,
			Auth:            Auth{AuthenticationType: "bearer"},
		},
		Riskuity: &riskuityConfig{
			BaseUrl:    "https://api.riskuity.com/v1",
			Timeout:    10 * time.Second,
			MaxRetries: 3,
			PageSize:   1000,
		},
		Storage: &storageConfig{
			Type:        StorageMemory,
			Endpoint:    "s3.amazonaws.com",
			Bucket:      "cortap-reports",
			Region:      "us-east-1",
			UseSSL:      true,
			DownloadTTL: 24 * time.Hour,
		},
		Report: &reportConfig{
			Timeout:              5 * time.Minute,
			Format:               "xlsx",
			DeficiencyKeywords:   []string{"fail", "deficient", "non-compliant", "violation"},
			DeficientStatusCodes: []string{"D", "DEFICIENT", "FAIL", "FAILED", "NON-COMPLIANT"},
			DeficiencyNegations:  []string{"non", "no", "not"},
			UnmatchedPolicy:      UnmatchedPolicyTolerate,
		},
		Webhook: &webhookConfig{
			AttemptTimeout: 30 * time.Second,
			MaxAttempts:    5,
			InitialBackoff: time.Second,
		},
	}
}

func (c *Config) Validate() error {
	if !funk.ContainsString([]string{UnmatchedPolicyTolerate, UnmatchedPolicyFail}, c.Report.UnmatchedPolicy) {
		return fmt.Errorf("unknown unmatched control policy %q", c.Report.UnmatchedPolicy)
	}
	if !funk.ContainsString([]string{DispatcherLocal, DispatcherRiver}, c.Service.Dispatcher) {
		return fmt.Errorf("unknown job dispatcher %q", c.Service.Dispatcher)
	}
	if c.Service.Dispatcher == DispatcherRiver && c.Database.Type != "pgsql" {
		return fmt.Errorf("the river dispatcher requires a pgsql database, got %q", c.Database.Type)
	}
	if !funk.ContainsString([]string{StorageS3, StorageMemory}, c.Storage.Type) {
		return fmt.Errorf("unknown storage type %q", c.Storage.Type)
	}
	if c.Report.Timeout <= 0 {
		return fmt.Errorf("report timeout must be positive")
	}
	if c.Webhook.MaxAttempts < 1 {
		return fmt.Errorf("webhook max attempts must be at least 1")
	}
	if c.Webhook.Secret == "" {
		return fmt.Errorf("CORTAP_WEBHOOK_SECRET must be set to sign callbacks")
	}
	if c.Service.Workers < 1 {
		return fmt.Errorf("job workers must be at least 1")
	}
	if c.Service.JanitorInterval <= 0 {
		return fmt.Errorf("janitor interval must be positive")
	}
	if c.Service.JobRetention <= 0 {
		return fmt.Errorf("job retention must be positive")
	}
	return nil
}
