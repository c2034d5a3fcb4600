package startup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"map-manager/internal/billing"
)

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	if info.Version == "" {
		t.Error("Expected Version to be set")
	}
	if info.OS == "" || info.Arch == "" {
		t.Error("Expected OS and Arch to be set")
	}
	if info.GoVersion != GoVersion {
		t.Errorf("Expected GoVersion=%s, got %s", GoVersion, info.GoVersion)
	}
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
		setEnv       bool
	}{
		{
			name:         "Returns default when env var not set",
			key:          "TEST_UNSET_VAR",
			defaultValue: "default",
			want:         "default",
		},
		{
			name:         "Returns env value when set",
			key:          "TEST_SET_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
			setEnv:       true,
		},
		{
			name:         "Returns default when env var is empty",
			key:          "TEST_EMPTY_VAR",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
			setEnv:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setEnv {
				t.Setenv(tt.key, tt.envValue)
			} else {
				os.Unsetenv(tt.key)
			}

			if got := getEnv(tt.key, tt.defaultValue); got != tt.want {
				t.Errorf("getEnv(%q, %q) = %q, want %q", tt.key, tt.defaultValue, got, tt.want)
			}
		})
	}
}

// clearConfigEnv unsets every variable readConfig consults.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DATA_DIR", "DATABASE_DIR", "PORT", "METRICS_PORT", "METRICS_ENABLED",
		"LOG_STATIC_FILES", "LOG_HEALTH_CHECKS", "SCAN_INTERVAL", "SCAN_WORKERS",
		"SCAN_WATCH", "BILLING_URL", "BILLING_ENABLED", "BILLING_HTTP_TIMEOUT",
		"DEVELOPER_BUILD", "APP_VERSION", "APP_LANG", "APP_PACKAGE",
	} {
		t.Setenv(key, "")
	}
}

func writeIni(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.ini")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write ini: %v", err)
	}
	return path
}

func TestReadConfigDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := readConfig(filepath.Join(t.TempDir(), "missing.ini"))
	if err != nil {
		t.Fatalf("readConfig: %v", err)
	}

	if cfg.DataDir != "/data" || cfg.DatabaseDir != "/database" {
		t.Errorf("Unexpected directories %q %q", cfg.DataDir, cfg.DatabaseDir)
	}
	if cfg.Port != "8080" || cfg.MetricsPort != "9090" || !cfg.MetricsEnabled {
		t.Errorf("Unexpected server defaults %+v", cfg)
	}
	if cfg.ScanInterval != 30*time.Minute || cfg.ScanWorkers != 0 || !cfg.ScanWatch {
		t.Errorf("Unexpected scan defaults %+v", cfg)
	}
	if cfg.BillingURL != billing.DefaultBaseURL || !cfg.BillingEnabled || cfg.DeveloperBuild {
		t.Errorf("Unexpected billing defaults %+v", cfg)
	}
	if cfg.BillingHTTPTimeout != 30*time.Second {
		t.Errorf("Expected 30s billing timeout, got %v", cfg.BillingHTTPTimeout)
	}
	if cfg.AppVersion != Version || cfg.AppLang != "en" {
		t.Errorf("Unexpected app defaults %q %q", cfg.AppVersion, cfg.AppLang)
	}
}

func TestReadConfigIniAndEnvPrecedence(t *testing.T) {
	clearConfigEnv(t)
	path := writeIni(t, `
[storage]
data_dir = /srv/maps

[server]
port = 9000
log_static_files = true

[scan]
interval = 5m
workers = 3
watch = false

[billing]
url = http://ini.example
developer_build = true
lang = de
`)

	t.Setenv("PORT", "7000")
	t.Setenv("APP_LANG", "fr")

	cfg, err := readConfig(path)
	if err != nil {
		t.Fatalf("readConfig: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"ini data dir", cfg.DataDir, "/srv/maps"},
		{"env port wins", cfg.Port, "7000"},
		{"ini bool", cfg.LogStaticFiles, true},
		{"ini interval", cfg.ScanInterval, 5 * time.Minute},
		{"ini workers", cfg.ScanWorkers, 3},
		{"ini watch", cfg.ScanWatch, false},
		{"ini url", cfg.BillingURL, "http://ini.example"},
		{"ini developer build", cfg.DeveloperBuild, true},
		{"env lang wins", cfg.AppLang, "fr"},
		{"default database dir", cfg.DatabaseDir, "/database"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestReadConfigInvalidValuesFallBack(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("SCAN_INTERVAL", "often")
	t.Setenv("SCAN_WORKERS", "-2")
	t.Setenv("METRICS_ENABLED", "maybe")

	cfg, err := readConfig(filepath.Join(t.TempDir(), "missing.ini"))
	if err != nil {
		t.Fatalf("readConfig: %v", err)
	}

	if cfg.ScanInterval != 30*time.Minute {
		t.Errorf("Expected default interval, got %v", cfg.ScanInterval)
	}
	if cfg.ScanWorkers != 0 {
		t.Errorf("Expected default workers, got %d", cfg.ScanWorkers)
	}
	if !cfg.MetricsEnabled {
		t.Error("Expected default METRICS_ENABLED")
	}
}

func TestReadConfigMalformedIni(t *testing.T) {
	clearConfigEnv(t)
	path := writeIni(t, "[storage\ndata_dir = x\n")

	if _, err := readConfig(path); err == nil {
		t.Error("Expected error for malformed ini file")
	}
}

func TestLoadConfigCreatesDatabaseDir(t *testing.T) {
	clearConfigEnv(t)
	root := t.TempDir()
	t.Setenv("CONFIG_FILE", filepath.Join(root, "none.ini"))
	t.Setenv("DATA_DIR", filepath.Join(root, "data"))
	t.Setenv("DATABASE_DIR", filepath.Join(root, "db"))

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.DatabasePath != filepath.Join(root, "db", "map-manager.db") {
		t.Errorf("Unexpected database path %q", cfg.DatabasePath)
	}
	if info, err := os.Stat(filepath.Join(root, "db")); err != nil || !info.IsDir() {
		t.Errorf("Expected database directory to be created: %v", err)
	}
}

func TestBillingConfig(t *testing.T) {
	cfg := &Config{DeveloperBuild: true, BillingEnabled: true, AppPackage: "pkg", AppVersion: "1.2", AppLang: "nl"}
	got := cfg.BillingConfig()
	want := billing.Config{DeveloperBuild: true, Enabled: true, Package: "pkg", Version: "1.2", Lang: "nl"}

	if got != want {
		t.Errorf("BillingConfig() = %+v, want %+v", got, want)
	}
}

func TestGetRouteGroup(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/purchases/inventory", "api/purchases"},
		{"/api/local-indexes", "api/local-indexes"},
		{"/healthz", "healthz"},
		{"/", ""},
	}

	for _, tt := range tests {
		if got := getRouteGroup(tt.path); got != tt.want {
			t.Errorf("getRouteGroup(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestGetRoutes(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/api/purchases", nil).Methods("GET").Name("purchases")
	router.HandleFunc("/api/purchases/inventory", nil).Methods("POST")

	routes, err := GetRoutes(router)
	if err != nil {
		t.Fatalf("GetRoutes: %v", err)
	}
	if len(routes) != 2 {
		t.Fatalf("Expected 2 routes, got %d", len(routes))
	}
	if routes[0] != (RouteInfo{Method: "GET", Path: "/api/purchases", Name: "purchases"}) {
		t.Errorf("Unexpected first route %+v", routes[0])
	}
}
