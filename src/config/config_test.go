package config

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"commission-observer/src/logger"
	"commission-observer/src/models"
)

const minimalYAML = `
name: commission-observer
host: 127.0.0.1
port: 8080
log_level: DEBUG
deriv:
  app_id: "1089"
storage:
  db_type: sqlite
  db_path: commission.db
`

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func clearDerivEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvAPIToken, EnvAppID, EnvEndpoint, EnvServerURL} {
		key := key
		if old, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, old) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
}

func TestNewConfigAppliesDefaults(t *testing.T) {
	clearDerivEnv(t)
	cfg, err := NewConfig(writeConfig(t, t.TempDir(), minimalYAML))
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}

	if cfg.Deriv.Endpoint != models.DefaultEndpoint {
		t.Errorf("expected default endpoint, got %s", cfg.Deriv.Endpoint)
	}
	if cfg.AuthorizeTimeout() != 10*time.Second || cfg.RequestTimeout() != 15*time.Second {
		t.Errorf("unexpected timeouts %v / %v", cfg.AuthorizeTimeout(), cfg.RequestTimeout())
	}
	if cfg.Dashboard.HistoryDays != 30 || cfg.Storage.RetentionDays != 90 {
		t.Errorf("unexpected defaults %+v %+v", cfg.Dashboard, cfg.Storage)
	}
	if cfg.LogLevel != "DEBUG" {
		t.Errorf("explicit log level overwritten: %s", cfg.LogLevel)
	}
}

func TestEnvironmentOverridesYAML(t *testing.T) {
	clearDerivEnv(t)
	os.Setenv(EnvAPIToken, "env-token")
	os.Setenv(EnvServerURL, "wss://alt.example/websockets/v3")

	cfg, err := NewConfig(writeConfig(t, t.TempDir(), minimalYAML+"  api_token: yaml-token\n"))
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}

	conn := cfg.ConnectionConfig()
	if conn.AccessToken != "env-token" {
		t.Errorf("env token should win, got %s", conn.AccessToken)
	}
	url, err := conn.URL()
	if err != nil {
		t.Fatal(err)
	}
	if url != "wss://alt.example/websockets/v3?app_id=1089" {
		t.Errorf("unexpected dial url %s", url)
	}
}

func TestDotEnvBesideConfig(t *testing.T) {
	clearDerivEnv(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("DERIV_API_TOKEN=dotenv-token\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewConfig(writeConfig(t, dir, minimalYAML))
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if cfg.Deriv.APIToken != "dotenv-token" {
		t.Fatalf("expected token from .env, got %q", cfg.Deriv.APIToken)
	}
}

func TestMalformedDotEnvFails(t *testing.T) {
	clearDerivEnv(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("DERIV-API-TOKEN=oops\n"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := NewConfig(writeConfig(t, dir, minimalYAML))
	if err == nil || !strings.Contains(err.Error(), ".env") {
		t.Fatalf("expected an env file error, got %v", err)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	clearDerivEnv(t)
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"missing app id", "name: x\nport: 8080\n", "app_id"},
		{"low port", "port: 80\nderiv:\n  app_id: \"1\"\n", "port"},
		{"unknown db", "deriv:\n  app_id: \"1\"\nstorage:\n  db_type: mysql\n", "unsupported database"},
		{"postgres without dsn", "deriv:\n  app_id: \"1\"\nstorage:\n  db_type: postgres\n", "connection string"},
		{"redis without url", "deriv:\n  app_id: \"1\"\ntoken_store:\n  enabled: true\n", "redis_url"},
		{"kafka without brokers", "deriv:\n  app_id: \"1\"\npublisher:\n  enabled: true\n", "brokers"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewConfig(writeConfig(t, t.TempDir(), tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestSaveOmitsToken(t *testing.T) {
	clearDerivEnv(t)
	dir := t.TempDir()
	body := `
name: commission-observer
port: 8080
storage:
  db_type: sqlite
  db_path: commission.db
deriv:
  app_id: "1089"
  api_token: secret
`
	cfg, err := NewConfig(writeConfig(t, dir, body))
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if cfg.Deriv.APIToken != "secret" {
		t.Fatalf("token not loaded from the deriv block, got %q", cfg.Deriv.APIToken)
	}

	out := filepath.Join(dir, "saved.yaml")
	if err := cfg.Save(out); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "secret") {
		t.Fatal("saved config leaked the api token")
	}
	if cfg.Deriv.APIToken != "secret" {
		t.Fatal("Save must not clear the in-memory token")
	}

	reloaded, err := NewConfig(out)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Deriv.AppID != "1089" || reloaded.Port != 8080 {
		t.Fatalf("unexpected reloaded config %+v", reloaded.MConfig)
	}
}

func TestWatchReloadsOnChange(t *testing.T) {
	clearDerivEnv(t)
	dir := t.TempDir()
	path := writeConfig(t, dir, minimalYAML)

	log := logger.NewLogger(nil, "ConfigWatcher")
	log.SetOutput(io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, log, path, func(c *Config) { changes <- c })
	}()

	updated := strings.Replace(minimalYAML, `app_id: "1089"`, `app_id: "2222"`, 1)
	deadline := time.After(5 * time.Second)
	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case cfg := <-changes:
			if cfg.Deriv.AppID != "2222" {
				t.Fatalf("unexpected reloaded app id %s", cfg.Deriv.AppID)
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("watch returned %v", err)
			}
			return
		case <-ticker.C:
			// Rewrite until the watcher, which starts asynchronously, sees it.
			writeConfig(t, dir, updated)
		case <-deadline:
			t.Fatal("config change not observed")
		}
	}
}
