package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Backend names accepted by LAKEDASH_UPLOAD_BACKEND and LAKEDASH_REPORT_BACKEND.
const (
	BackendCallback = "callback"
	BackendS3       = "s3"
	BackendPostgres = "postgres"
)

// Config holds runtime configuration for the dashboard service.
type Config struct {
	Addr             string `env:"LAKEDASH_ADDR,default=:5000"`
	DeployConfigPath string `env:"KB_DEPLOYMENT_CONFIG,default=deploy.cfg"`

	CallbackURL string `env:"SDK_CALLBACK_URL"`
	AuthToken   string `env:"KB_AUTH_TOKEN"`

	ScratchDir           string `env:"LAKEDASH_SCRATCH"`
	DashboardTemplateDir string `env:"LAKEDASH_DASHBOARD_DIR,default=/kb/module/data/html"`
	HeatmapTemplateDir   string `env:"LAKEDASH_HEATMAP_DIR,default=/kb/module/data/heatmap"`
	RetainBundles        bool   `env:"LAKEDASH_RETAIN_BUNDLES,default=false"`

	UploadBackend string `env:"LAKEDASH_UPLOAD_BACKEND,default=callback"`
	ReportBackend string `env:"LAKEDASH_REPORT_BACKEND,default=callback"`

	JobPollInitial time.Duration `env:"LAKEDASH_JOB_POLL_INITIAL,default=100ms"`
	JobPollMax     time.Duration `env:"LAKEDASH_JOB_POLL_MAX,default=5m"`

	S3 S3Config `env:",prefix=S3_"`

	DBDSN   string `env:"DB_DSN"`
	NATSURL string `env:"NATS_URL"`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	LogFormat    string `env:"LAKEDASH_LOG_FORMAT,default=json"`
	LogLevel     string `env:"LAKEDASH_LOG_LEVEL,default=info"`
}

// S3Config configures the object store upload backend.
type S3Config struct {
	Endpoint       string `env:"ENDPOINT"`
	AccessKey      string `env:"ACCESS_KEY"`
	SecretKey      string `env:"SECRET_KEY"`
	Region         string `env:"REGION,default=us-east-1"`
	Bucket         string `env:"BUCKET"`
	Prefix         string `env:"PREFIX,default=lakedash/"`
	DisableTLS     bool   `env:"DISABLE_TLS,default=false"`
	ForcePathStyle bool   `env:"FORCE_PATH_STYLE,default=true"`
}

// Load returns a Config populated from environment variables, falling back to
// the deployment config file named by KB_DEPLOYMENT_CONFIG.
func Load(ctx context.Context) (Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, env envconfig.Lookuper) (Config, error) {
	path, explicit := env.Lookup("KB_DEPLOYMENT_CONFIG")
	if !explicit || path == "" {
		path = "deploy.cfg"
	}

	fileValues, err := readDeployConfig(path, explicit)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: envconfig.MultiLookuper(env, envconfig.MapLookuper(fileValues)),
	}); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements that struct tags cannot express.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.ScratchDir) == "" {
		errs = append(errs, errors.New("LAKEDASH_SCRATCH (or scratch in the deployment config) is required"))
	}
	if c.DashboardTemplateDir == "" || c.HeatmapTemplateDir == "" {
		errs = append(errs, errors.New("LAKEDASH_DASHBOARD_DIR and LAKEDASH_HEATMAP_DIR must not be empty"))
	}

	switch c.UploadBackend {
	case BackendCallback:
	case BackendS3:
		if c.S3.Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required when LAKEDASH_UPLOAD_BACKEND=s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid LAKEDASH_UPLOAD_BACKEND: %q", c.UploadBackend))
	}

	switch c.ReportBackend {
	case BackendCallback:
	case BackendPostgres:
		if c.DBDSN == "" {
			errs = append(errs, errors.New("DB_DSN is required when LAKEDASH_REPORT_BACKEND=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid LAKEDASH_REPORT_BACKEND: %q", c.ReportBackend))
	}

	if c.UsesCallback() && c.CallbackURL == "" {
		errs = append(errs, errors.New("SDK_CALLBACK_URL is required for the callback backend"))
	}
	if c.JobPollInitial <= 0 || c.JobPollMax < c.JobPollInitial {
		errs = append(errs, fmt.Errorf("invalid job poll window: initial %s, max %s", c.JobPollInitial, c.JobPollMax))
	}

	return errors.Join(errs...)
}

// UsesCallback reports whether any collaborator talks to the SDK callback server.
func (c Config) UsesCallback() bool {
	return c.UploadBackend == BackendCallback || c.ReportBackend == BackendCallback
}
