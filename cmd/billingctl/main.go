package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"map-manager/internal/billing"
	"map-manager/internal/database"

	"golang.org/x/term"
)

const (
	// Default timeout for database operations
	defaultTimeout = 30 * time.Second
	// Default database directory path
	defaultDatabaseDir = "/database"
	databaseFile       = "map-manager.db"
)

// readSecret reads a line from the terminal without echo.
var readSecret = func() ([]byte, error) {
	return term.ReadPassword(int(syscall.Stdin))
}

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}

	command := os.Args[1]

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, shutting down...")
		cancel()
	}()

	if !knownCommand(command) {
		// Sanitize command input using allowlist to break taint chain
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", sanitizeCommand(command)) //nolint:gosec // G705 - only [a-zA-Z0-9_-] pass through sanitizeCommand
		printUsage(os.Stdout)
		os.Exit(1)
	}

	databaseDir := databaseDirFromEnv()
	db, err := database.New(ctx, filepath.Join(databaseDir, databaseFile))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect to database: %v\n", err)
		fmt.Fprintf(os.Stderr, "Make sure DATABASE_DIR is set correctly (current: %s)\n", databaseDir)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
		}
	}()

	if err := run(ctx, command, db, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var commands = []string{"status", "reset-identity", "set-token", "password", "vacuum"}

func knownCommand(command string) bool {
	for _, c := range commands {
		if c == command {
			return true
		}
	}
	return false
}

func run(ctx context.Context, command string, db *database.Database, out io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	switch command {
	case "status":
		return showStatus(ctx, db, out)
	case "reset-identity":
		return resetIdentity(ctx, db, out)
	case "set-token":
		return setToken(ctx, db, out)
	case "password":
		return setPassword(ctx, db, out)
	case "vacuum":
		if err := db.Vacuum(ctx); err != nil {
			return fmt.Errorf("failed to vacuum database: %w", err)
		}
		fmt.Fprintln(out, "Database compacted.")
		return nil
	default:
		return fmt.Errorf("unknown command %q", sanitizeCommand(command))
	}
}

func databaseDirFromEnv() string {
	if dir := os.Getenv("DATABASE_DIR"); dir != "" {
		return dir
	}
	return defaultDatabaseDir
}

// sanitizeCommand returns a safe representation of a command string for display.
// It uses an allowlist approach, replacing any character that is not alphanumeric,
// a hyphen, or an underscore with '_'.
func sanitizeCommand(cmd string) string {
	var b strings.Builder
	b.Grow(len(cmd))
	for _, r := range cmd {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "Map Manager Billing Control")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Usage: billingctl <command>")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  status          - Show billing identity, entitlements and password state")
	fmt.Fprintln(out, "  reset-identity  - Forget the registered user id, token and sent purchase tokens")
	fmt.Fprintln(out, "  set-token       - Replace the stored user token")
	fmt.Fprintln(out, "  password        - Set the API password")
	fmt.Fprintln(out, "  vacuum          - Compact the database")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Environment:")
	fmt.Fprintf(out, "  DATABASE_DIR - Path to database directory (default: %s)\n", defaultDatabaseDir)
}

func showStatus(ctx context.Context, db *database.Database, out io.Writer) error {
	info, err := billing.LoadInstallInfo(ctx, db, time.Now())
	if err != nil {
		return fmt.Errorf("failed to read install info: %w", err)
	}
	userID, err := db.GetString(ctx, billing.KeyUserID)
	if err != nil {
		return fmt.Errorf("failed to read user id: %w", err)
	}
	token, err := db.GetString(ctx, billing.KeyUserToken)
	if err != nil {
		return fmt.Errorf("failed to read user token: %w", err)
	}
	ents, err := billing.ReadEntitlements(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to read entitlements: %w", err)
	}

	fmt.Fprintln(out, "Install:")
	fmt.Fprintf(out, "  ID:              %s\n", orNone(info.ID))
	fmt.Fprintf(out, "  Starts:          %d\n", info.NumberOfStarts)
	if !info.FirstInstallTime.IsZero() {
		fmt.Fprintf(out, "  First install:   %s (%d days)\n", info.FirstInstallTime.Format(time.RFC3339), info.FirstInstalledDays)
	}
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Identity:")
	fmt.Fprintf(out, "  User ID:         %s\n", orNone(userID))
	fmt.Fprintf(out, "  Token:           %s\n", maskToken(token))
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Entitlements:")
	fmt.Fprintf(out, "  Full version:    %s\n", yesNo(ents.FullVersion))
	fmt.Fprintf(out, "  Live updates:    %s\n", yesNo(ents.LiveUpdates))
	fmt.Fprintf(out, "  Depth contours:  %s\n", yesNo(ents.DepthContours))
	fmt.Fprintf(out, "  Contour lines:   %s\n", yesNo(ents.ContourLines))
	fmt.Fprintln(out, "")
	if db.HasUsers(ctx) {
		fmt.Fprintln(out, "Password: configured")
	} else {
		fmt.Fprintln(out, "Password: not configured (API is open)")
	}
	return nil
}

func resetIdentity(ctx context.Context, db *database.Database, out io.Writer) error {
	if err := billing.ResetIdentity(ctx, db); err != nil {
		return fmt.Errorf("failed to reset identity: %w", err)
	}
	fmt.Fprintln(out, "Billing identity cleared.")
	fmt.Fprintln(out, "The next live updates purchase registers a new user.")
	return nil
}

func setToken(ctx context.Context, db *database.Database, out io.Writer) error {
	userID, err := db.GetString(ctx, billing.KeyUserID)
	if err != nil {
		return fmt.Errorf("failed to read user id: %w", err)
	}
	if userID == "" {
		return errors.New("no registered user; purchase live updates first")
	}

	fmt.Fprint(out, "Token: ")
	token, err := readSecret()
	fmt.Fprintln(out)
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}
	t := strings.TrimSpace(string(token))
	if t == "" {
		return errors.New("token must not be empty")
	}

	if err := db.SetString(ctx, billing.KeyUserToken, t); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	fmt.Fprintln(out, "Token updated.")
	return nil
}

func setPassword(ctx context.Context, db *database.Database, out io.Writer) error {
	fmt.Fprint(out, "New Password: ")
	password, err := readSecret()
	fmt.Fprintln(out)
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	fmt.Fprint(out, "Confirm Password: ")
	confirm, err := readSecret()
	fmt.Fprintln(out)
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	if !bytes.Equal(password, confirm) {
		return errors.New("passwords do not match")
	}

	if err := db.SetPassword(ctx, string(password)); err != nil {
		if errors.Is(err, database.ErrPasswordTooShort) {
			return fmt.Errorf("password must be at least %d characters", database.MinPasswordLength)
		}
		return fmt.Errorf("failed to update password: %w", err)
	}

	fmt.Fprintln(out, "Password updated successfully.")
	fmt.Fprintln(out, "All existing sessions have been invalidated.")
	return nil
}

func maskToken(token string) string {
	switch {
	case token == "":
		return "(none)"
	case len(token) <= 4:
		return "****"
	default:
		return token[:4] + strings.Repeat("*", len(token)-4)
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
