package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// deployKeyAliases maps deployment config keys onto the env names Config reads.
var deployKeyAliases = map[string]string{
	"scratch":          "LAKEDASH_SCRATCH",
	"callback-url":     "SDK_CALLBACK_URL",
	"dashboard-dir":    "LAKEDASH_DASHBOARD_DIR",
	"heatmap-dir":      "LAKEDASH_HEATMAP_DIR",
	"upload-backend":   "LAKEDASH_UPLOAD_BACKEND",
	"report-backend":   "LAKEDASH_REPORT_BACKEND",
	"retain-bundles":   "LAKEDASH_RETAIN_BUNDLES",
	"nats-url":         "NATS_URL",
	"db-dsn":           "DB_DSN",
	"s3-bucket":        "S3_BUCKET",
	"s3-endpoint":      "S3_ENDPOINT",
	"otlp-endpoint":    "OTEL_EXPORTER_OTLP_ENDPOINT",
	"log-format":       "LAKEDASH_LOG_FORMAT",
	"job-poll-initial": "LAKEDASH_JOB_POLL_INITIAL",
}

// readDeployConfig loads the deployment config file. A missing file is only an
// error when the path was set explicitly.
func readDeployConfig(path string, required bool) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("open deployment config: %w", err)
	}
	defer f.Close()

	var raw map[string]string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		raw, err = parseYAMLConfig(f)
	default:
		raw, err = parseKeyValueConfig(f)
	}
	if err != nil {
		return nil, fmt.Errorf("parse deployment config %s: %w", path, err)
	}

	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[envName(k)] = v
	}
	return out, nil
}

// parseKeyValueConfig reads key=value lines. Section headers, comments and
// lines without '=' are skipped; the first '=' splits key from value.
func parseKeyValueConfig(r io.Reader) (map[string]string, error) {
	values := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.TrimSpace(value)
	}
	return values, scanner.Err()
}

func parseYAMLConfig(r io.Reader) (map[string]string, error) {
	var doc map[string]any
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]string{}, nil
		}
		return nil, err
	}

	values := make(map[string]string, len(doc))
	for k, v := range doc {
		switch v.(type) {
		case map[string]any, []any:
			return nil, fmt.Errorf("key %q: nested values are not supported", k)
		case nil:
			values[k] = ""
		default:
			values[k] = fmt.Sprint(v)
		}
	}
	return values, nil
}

func envName(key string) string {
	if alias, ok := deployKeyAliases[strings.ToLower(key)]; ok {
		return alias
	}
	return strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}
