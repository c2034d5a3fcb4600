package startup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-ini/ini"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"map-manager/internal/billing"
	"map-manager/internal/logging"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// DefaultConfigFile is read when CONFIG_FILE is unset. A missing file is not
// an error.
const DefaultConfigFile = "config.ini"

// Config holds all application configuration
type Config struct {
	ConfigFile      string
	DataDir         string
	DatabaseDir     string
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	LogStaticFiles  bool
	LogHealthChecks bool

	ScanInterval time.Duration
	ScanWorkers  int
	ScanWatch    bool

	BillingURL         string
	BillingEnabled     bool
	BillingHTTPTimeout time.Duration
	DeveloperBuild     bool
	AppVersion         string
	AppLang            string
	AppPackage         string

	// Derived paths
	DatabasePath string
}

// source resolves a setting from the environment first, then the ini file,
// then the default.
type source struct {
	file *ini.File
}

func newSource(path string) (*source, error) {
	file, err := ini.LooseLoad(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return &source{file: file}, nil
}

func (s *source) str(env, section, key, def string) string {
	if v := os.Getenv(env); v != "" {
		return v
	}
	if sec, err := s.file.GetSection(section); err == nil && sec.HasKey(key) {
		if v := strings.TrimSpace(sec.Key(key).String()); v != "" {
			return v
		}
	}
	return def
}

func (s *source) boolean(env, section, key string, def bool) bool {
	raw := s.str(env, section, key, "")
	if raw == "" {
		return def
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		logging.Warn("  Invalid boolean value for %s: %q, using default: %v", env, raw, def)
		return def
	}
	return parsed
}

func (s *source) integer(env, section, key string, def int) int {
	raw := s.str(env, section, key, "")
	if raw == "" {
		return def
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		logging.Warn("  Invalid integer value for %s: %q, using default: %d", env, raw, def)
		return def
	}
	return parsed
}

func (s *source) duration(env, section, key string, def time.Duration) time.Duration {
	raw := s.str(env, section, key, "")
	if raw == "" {
		return def
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed < 0 {
		logging.Warn("  Invalid %s, using default: %v", env, def)
		return def
	}
	return parsed
}

// LoadConfig loads configuration from an optional .env file, an optional ini
// file and the environment, in increasing order of precedence. The database
// directory is created and must be writable.
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.Warn("Failed to load .env: %v", err)
	}

	config, err := readConfig(getEnv("CONFIG_FILE", DefaultConfigFile))
	if err != nil {
		return nil, err
	}
	logConfig(config)

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	if config.DataDir, err = filepath.Abs(config.DataDir); err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	logging.Info("  Data directory (absolute): %s", config.DataDir)

	if config.DatabaseDir, err = filepath.Abs(config.DatabaseDir); err != nil {
		return nil, fmt.Errorf("failed to resolve database directory path: %w", err)
	}
	logging.Info("  Database directory (absolute): %s", config.DatabaseDir)
	config.DatabasePath = filepath.Join(config.DatabaseDir, "map-manager.db")

	// The storage root is scanned read-only; a missing one scans as empty.
	if err := ensureDirectory(config.DataDir, "data"); err != nil {
		logging.Warn("  Data directory issue: %v", err)
	}

	if err := ensureDirectory(config.DatabaseDir, "database"); err != nil {
		return nil, fmt.Errorf("database directory error: %w", err)
	}

	logging.Debug("  Testing database directory write access...")
	if err := testWriteAccess(config.DatabaseDir); err != nil {
		return nil, fmt.Errorf("database directory is not writable (required for database): %w", err)
	}
	logging.Info("  [OK] Database directory is writable")

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Database:    ENABLED (required)")
	logging.Info("    Billing:     %s", enabledString(config.BillingEnabled && !config.DeveloperBuild))
	logging.Info("    Watcher:     %s", enabledString(config.ScanWatch))
	logging.Info("    Metrics:     %s", enabledString(config.MetricsEnabled))

	return config, nil
}

// readConfig resolves every setting without touching the filesystem beyond
// reading the ini file.
func readConfig(path string) (*Config, error) {
	src, err := newSource(path)
	if err != nil {
		return nil, err
	}

	return &Config{
		ConfigFile:      path,
		DataDir:         src.str("DATA_DIR", "storage", "data_dir", "/data"),
		DatabaseDir:     src.str("DATABASE_DIR", "storage", "database_dir", "/database"),
		Port:            src.str("PORT", "server", "port", "8080"),
		MetricsPort:     src.str("METRICS_PORT", "server", "metrics_port", "9090"),
		MetricsEnabled:  src.boolean("METRICS_ENABLED", "server", "metrics_enabled", true),
		LogStaticFiles:  src.boolean("LOG_STATIC_FILES", "server", "log_static_files", false),
		LogHealthChecks: src.boolean("LOG_HEALTH_CHECKS", "server", "log_health_checks", true),

		ScanInterval: src.duration("SCAN_INTERVAL", "scan", "interval", 30*time.Minute),
		ScanWorkers:  src.integer("SCAN_WORKERS", "scan", "workers", 0),
		ScanWatch:    src.boolean("SCAN_WATCH", "scan", "watch", true),

		BillingURL:         src.str("BILLING_URL", "billing", "url", billing.DefaultBaseURL),
		BillingEnabled:     src.boolean("BILLING_ENABLED", "billing", "enabled", true),
		BillingHTTPTimeout: src.duration("BILLING_HTTP_TIMEOUT", "billing", "http_timeout", 30*time.Second),
		DeveloperBuild:     src.boolean("DEVELOPER_BUILD", "billing", "developer_build", false),
		AppVersion:         src.str("APP_VERSION", "billing", "version", Version),
		AppLang:            src.str("APP_LANG", "billing", "lang", "en"),
		AppPackage:         src.str("APP_PACKAGE", "billing", "package", "net.osmand.plus"),
	}, nil
}

// BillingConfig maps the billing settings onto the purchase helper config.
func (c *Config) BillingConfig() billing.Config {
	return billing.Config{
		DeveloperBuild: c.DeveloperBuild,
		Enabled:        c.BillingEnabled,
		Package:        c.AppPackage,
		Version:        c.AppVersion,
		Lang:           c.AppLang,
	}
}

func logConfig(c *Config) {
	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  CONFIG_FILE:          %s", c.ConfigFile)
	logging.Info("  DATA_DIR:             %s", c.DataDir)
	logging.Info("  DATABASE_DIR:         %s", c.DatabaseDir)
	logging.Info("  PORT:                 %s", c.Port)
	logging.Info("  METRICS_PORT:         %s", c.MetricsPort)
	logging.Info("  METRICS_ENABLED:      %v", c.MetricsEnabled)
	logging.Info("  SCAN_INTERVAL:        %v", c.ScanInterval)
	logging.Info("  SCAN_WORKERS:         %d", c.ScanWorkers)
	logging.Info("  SCAN_WATCH:           %v", c.ScanWatch)
	logging.Info("  BILLING_URL:          %s", c.BillingURL)
	logging.Info("  BILLING_ENABLED:      %v", c.BillingEnabled)
	logging.Info("  BILLING_HTTP_TIMEOUT: %v", c.BillingHTTPTimeout)
	logging.Info("  DEVELOPER_BUILD:      %v", c.DeveloperBuild)
	logging.Info("  APP_VERSION:          %s", c.AppVersion)
	logging.Info("  APP_LANG:             %s", c.AppLang)
	logging.Info("  APP_PACKAGE:          %s", c.AppPackage)
	logging.Info("  LOG_STATIC_FILES:     %v", c.LogStaticFiles)
	logging.Info("  LOG_HEALTH_CHECKS:    %v", c.LogHealthChecks)
	logging.Info("  LOG_LEVEL:            %s", logging.GetLevel())
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DATABASE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Database initialized in %v", duration)
}

// LogBillingInit logs the purchase helper configuration
func LogBillingInit(c *Config, info billing.InstallInfo) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("BILLING INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Service:        %s", c.BillingURL)
	logging.Info("  Install ID:     %s", info.ID)
	logging.Info("  Launch count:   %d", info.NumberOfStarts)

	switch {
	case c.DeveloperBuild:
		logging.Info("  Developer build: all products unlocked, purchases disabled")
	case !c.BillingEnabled:
		logging.Warn("  Billing disabled: purchase requests will be rejected")
	default:
		logging.Info("  [OK] Billing enabled")
	}
}

// LogScannerInit logs local index scanner configuration
func LogScannerInit(c *Config) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SCANNER INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Storage root:   %s", c.DataDir)
	logging.Info("  Scan interval:  %v", c.ScanInterval)
	if c.ScanWorkers > 0 {
		logging.Info("  Workers:        %d", c.ScanWorkers)
	} else {
		logging.Info("  Workers:        auto")
	}
	logging.Info("  Starting scanner...")
}

// LogScannerStarted logs successful scanner start
func LogScannerStarted() {
	logging.Info("  [OK] Scanner started")
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			// Route might not have methods specified (e.g., static file server)
			methods = []string{"*"}
		}

		name := route.GetName()

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   name,
			})
		}

		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes dynamically
func LogHTTPRoutes(router *mux.Router, logStaticFiles, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))
		logging.Debug("")

		// Group routes by prefix for cleaner output
		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		// Sort group keys
		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		// Print routes by group
		for _, group := range groupKeys {
			groupRoutes := groups[group]
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}

			for _, route := range groupRoutes {
				methodPadded := fmt.Sprintf("%-6s", route.Method)
				logging.Debug("    %s %s", methodPadded, route.Path)
			}
			logging.Debug("")
		}
	}

	logging.Info("  HTTP logging enabled")
	if logStaticFiles {
		logging.Info("    Static file logging: ON")
	} else {
		logging.Info("    Static file logging: OFF (set LOG_STATIC_FILES=true to enable)")
	}
	if logHealthChecks {
		logging.Info("    Health check logging: ON")
	} else {
		logging.Info("    Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	// Remove leading slash
	path = strings.TrimPrefix(path, "/")

	// Get first segment
	parts := strings.SplitN(path, "/", 2)
	if len(parts) == 0 {
		return ""
	}

	first := parts[0]

	// Special handling for API routes
	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}

	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    Application:   http://0.0.0.0:%s", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Local access:")
	logging.Info("    Application:   http://localhost:%s", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://localhost:%s/metrics", config.MetricsPort)
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

// Helper functions

func printBanner() {
	banner := `
------------------------------------------------------------
    __  ___               __  ___
   /  |/  /___ _____     /  |/  /___ _____  ____ _____ ____  _____
  / /|_/ / __ '/ __ \   / /|_/ / __ '/ __ \/ __ '/ __ '/ _ \/ ___/
 / /  / / /_/ / /_/ /  / /  / / /_/ / / / / /_/ / /_/ /  __/ /
/_/  /_/\__,_/ .___/  /_/  /_/\__,_/_/ /_/\__,_/\__, /\___/_/
            /_/                               /____/
------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		logging.Debug("  Goroutines:      %d", runtime.NumGoroutine())

		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}

		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")

	if name == "data" && logging.IsDebugEnabled() {
		entries, err := os.ReadDir(path)
		if err == nil {
			fileCount := 0
			dirCount := 0
			for _, e := range entries {
				if e.IsDir() {
					dirCount++
				} else {
					fileCount++
				}
			}
			logging.Debug("    Contents: %d files, %d directories (top level)", fileCount, dirCount)
		}
	}

	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
		// Don't return error since write access was confirmed
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
