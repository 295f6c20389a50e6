package config

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestParseKeyValueConfig(t *testing.T) {
	input := strings.Join([]string{
		"[KBDatalakeDashboard]",
		"# comment",
		"scratch = /kb/module/work/tmp",
		"kbase-endpoint=https://kbase.us/services",
		"query=a=b",
		"no separator here",
		"=orphan",
	}, "\n")

	got, err := parseKeyValueConfig(strings.NewReader(input))
	if err != nil {
		t.Fatalf("parseKeyValueConfig() error = %v", err)
	}
	want := map[string]string{
		"scratch":        "/kb/module/work/tmp",
		"kbase-endpoint": "https://kbase.us/services",
		"query":          "a=b",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("parseKeyValueConfig() = %v, want %v", got, want)
	}
}

func TestEnvName(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{key: "scratch", want: "LAKEDASH_SCRATCH"},
		{key: "Scratch", want: "LAKEDASH_SCRATCH"},
		{key: "upload-backend", want: "LAKEDASH_UPLOAD_BACKEND"},
		{key: "kbase-endpoint", want: "KBASE_ENDPOINT"},
		{key: "S3_REGION", want: "S3_REGION"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := envName(tt.key); got != tt.want {
				t.Fatalf("envName(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	cfgFile := writeFile(t, "deploy.cfg", "scratch=/from/file\nupload-backend=s3\n")
	yamlFile := writeFile(t, "deploy.yaml", "scratch: /from/yaml\nretain-bundles: true\n")
	nestedYAML := writeFile(t, "nested.yml", "scratch:\n  dir: /x\n")

	tests := []struct {
		name    string
		env     map[string]string
		check   func(t *testing.T, cfg Config)
		wantErr string
	}{
		{
			name: "defaults with callback",
			env: map[string]string{
				"KB_DEPLOYMENT_CONFIG": cfgFile,
				"SDK_CALLBACK_URL":     "http://callback:9999",
				"S3_BUCKET":            "bundles",
			},
			check: func(t *testing.T, cfg Config) {
				if cfg.Addr != ":5000" {
					t.Errorf("Addr = %q, want :5000", cfg.Addr)
				}
				if cfg.ScratchDir != "/from/file" {
					t.Errorf("ScratchDir = %q, want /from/file", cfg.ScratchDir)
				}
				if cfg.UploadBackend != BackendS3 {
					t.Errorf("UploadBackend = %q, want s3", cfg.UploadBackend)
				}
				if cfg.ReportBackend != BackendCallback {
					t.Errorf("ReportBackend = %q, want callback", cfg.ReportBackend)
				}
				if cfg.DashboardTemplateDir != "/kb/module/data/html" || cfg.HeatmapTemplateDir != "/kb/module/data/heatmap" {
					t.Errorf("template dirs = %q, %q", cfg.DashboardTemplateDir, cfg.HeatmapTemplateDir)
				}
				if cfg.JobPollInitial != 100*time.Millisecond || cfg.JobPollMax != 5*time.Minute {
					t.Errorf("job poll = %s..%s", cfg.JobPollInitial, cfg.JobPollMax)
				}
				if !cfg.S3.ForcePathStyle || cfg.S3.Region != "us-east-1" || cfg.S3.Prefix != "lakedash/" {
					t.Errorf("S3 defaults = %+v", cfg.S3)
				}
			},
		},
		{
			name: "environment overrides file",
			env: map[string]string{
				"KB_DEPLOYMENT_CONFIG":    cfgFile,
				"LAKEDASH_SCRATCH":        "/from/env",
				"LAKEDASH_UPLOAD_BACKEND": "callback",
				"SDK_CALLBACK_URL":        "http://callback:9999",
			},
			check: func(t *testing.T, cfg Config) {
				if cfg.ScratchDir != "/from/env" {
					t.Errorf("ScratchDir = %q, want /from/env", cfg.ScratchDir)
				}
				if cfg.UploadBackend != BackendCallback {
					t.Errorf("UploadBackend = %q, want callback", cfg.UploadBackend)
				}
			},
		},
		{
			name: "yaml deployment config",
			env: map[string]string{
				"KB_DEPLOYMENT_CONFIG": yamlFile,
				"SDK_CALLBACK_URL":     "http://callback:9999",
			},
			check: func(t *testing.T, cfg Config) {
				if cfg.ScratchDir != "/from/yaml" {
					t.Errorf("ScratchDir = %q, want /from/yaml", cfg.ScratchDir)
				}
				if !cfg.RetainBundles {
					t.Error("RetainBundles = false, want true")
				}
			},
		},
		{
			name:    "nested yaml rejected",
			env:     map[string]string{"KB_DEPLOYMENT_CONFIG": nestedYAML},
			wantErr: "nested values",
		},
		{
			name:    "explicit missing file",
			env:     map[string]string{"KB_DEPLOYMENT_CONFIG": filepath.Join(t.TempDir(), "absent.cfg")},
			wantErr: "open deployment config",
		},
		{
			name: "callback url required",
			env: map[string]string{
				"KB_DEPLOYMENT_CONFIG": cfgFile,
				"S3_BUCKET":            "bundles",
			},
			wantErr: "SDK_CALLBACK_URL",
		},
		{
			name: "postgres needs dsn",
			env: map[string]string{
				"LAKEDASH_SCRATCH":        "/tmp",
				"LAKEDASH_UPLOAD_BACKEND": "s3",
				"LAKEDASH_REPORT_BACKEND": "postgres",
				"S3_BUCKET":               "bundles",
				"KB_DEPLOYMENT_CONFIG":    cfgFile,
			},
			wantErr: "DB_DSN",
		},
		{
			name: "unknown backend",
			env: map[string]string{
				"LAKEDASH_SCRATCH":        "/tmp",
				"LAKEDASH_UPLOAD_BACKEND": "ftp",
				"SDK_CALLBACK_URL":        "http://callback:9999",
				"KB_DEPLOYMENT_CONFIG":    cfgFile,
			},
			wantErr: "invalid LAKEDASH_UPLOAD_BACKEND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := load(context.Background(), envconfig.MapLookuper(tt.env))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("load() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("load() error = %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestLoadMissingDefaultFileIsIgnored(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := load(context.Background(), envconfig.MapLookuper(map[string]string{
		"LAKEDASH_SCRATCH": "/tmp",
		"SDK_CALLBACK_URL": "http://callback:9999",
	}))
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}
	if cfg.DeployConfigPath != "deploy.cfg" {
		t.Fatalf("DeployConfigPath = %q, want deploy.cfg", cfg.DeployConfigPath)
	}
}
