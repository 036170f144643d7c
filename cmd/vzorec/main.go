package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/smtp"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/vodalab/vzorec/internal/api"
	"github.com/vodalab/vzorec/internal/blob"
	"github.com/vodalab/vzorec/internal/coc"
	"github.com/vodalab/vzorec/internal/db"
	"github.com/vodalab/vzorec/internal/evidence"
	"github.com/vodalab/vzorec/internal/model"
	"github.com/vodalab/vzorec/internal/notify"
	"github.com/vodalab/vzorec/internal/store"
)

// levelRouter is a slog.Handler that routes INFO/WARN to stdout and ERROR+ to stderr.
type levelRouter struct {
	stdout slog.Handler
	stderr slog.Handler
}

func (lr *levelRouter) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelInfo
}

func (lr *levelRouter) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		return lr.stderr.Handle(ctx, r)
	}
	return lr.stdout.Handle(ctx, r)
}

func (lr *levelRouter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelRouter{
		stdout: lr.stdout.WithAttrs(attrs),
		stderr: lr.stderr.WithAttrs(attrs),
	}
}

func (lr *levelRouter) WithGroup(name string) slog.Handler {
	return &levelRouter{
		stdout: lr.stdout.WithGroup(name),
		stderr: lr.stderr.WithGroup(name),
	}
}

// setupLogger configures structured logging. INFO/WARN go to stdout, ERROR goes
// to stderr. If logPath is non-empty, all levels are also written to that file.
// Returns a cleanup function that closes the log file (if opened).
func setupLogger(logPath string) (func(), error) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	var cleanup func()

	stdoutW := io.Writer(os.Stdout)
	stderrW := io.Writer(os.Stderr)

	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		cleanup = func() { f.Close() }
		stdoutW = io.MultiWriter(os.Stdout, f)
		stderrW = io.MultiWriter(os.Stderr, f)
	}

	handler := &levelRouter{
		stdout: slog.NewTextHandler(stdoutW, opts),
		stderr: slog.NewTextHandler(stderrW, opts),
	}
	slog.SetDefault(slog.New(handler))
	return cleanup, nil
}

// envOr returns the environment variable's value, or fallback if unset.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	fs := flag.NewFlagSet("vzorec", flag.ContinueOnError)

	var dbPath string
	fs.StringVar(&dbPath, "db", "vzorec.sqlite3", "")
	fs.StringVar(&dbPath, "d", "vzorec.sqlite3", "")

	var addr string
	fs.StringVar(&addr, "addr", ":8080", "")
	fs.StringVar(&addr, "a", ":8080", "")

	var adminEmail string
	fs.StringVar(&adminEmail, "admin", envOr("VZOREC_ADMIN_EMAIL", "admin@vzorec.local"), "")
	fs.StringVar(&adminEmail, "m", envOr("VZOREC_ADMIN_EMAIL", "admin@vzorec.local"), "")

	var intakeID string
	fs.StringVar(&intakeID, "intake-id", envOr("VZOREC_INTAKE_ID", "lab-intake"), "")
	fs.StringVar(&intakeID, "i", envOr("VZOREC_INTAKE_ID", "lab-intake"), "")

	var blobDriver string
	fs.StringVar(&blobDriver, "blob", envOr("VZOREC_BLOB_DRIVER", "fs"), "")
	fs.StringVar(&blobDriver, "b", envOr("VZOREC_BLOB_DRIVER", "fs"), "")

	var blobDir string
	fs.StringVar(&blobDir, "blob-dir", envOr("VZOREC_BLOB_DIR", "blobs"), "")

	var smtpAddr string
	fs.StringVar(&smtpAddr, "smtp", envOr("VZOREC_SMTP_ADDR", ""), "")

	var logPath string
	fs.StringVar(&logPath, "log", "", "")
	fs.StringVar(&logPath, "l", "", "")

	fs.Usage = func() {
		fmt.Fprint(os.Stdout, `Usage: vzorec [flags]

Flags:
  -d, -db <path>          SQLite database path (default: vzorec.sqlite3)
  -a, -addr <host:port>   listen address (default: :8080)
  -m, -admin <email>      lab admin email, receives submission notifications
                          (default: $VZOREC_ADMIN_EMAIL or admin@vzorec.local)
  -i, -intake-id <id>     recipient identifier for the lab's intake point
                          (default: $VZOREC_INTAKE_ID or lab-intake)
  -b, -blob <driver>      photo storage driver: fs, s3, or memory
                          (default: $VZOREC_BLOB_DRIVER or fs)
      -blob-dir <path>    directory for the fs driver (default: blobs)
      -smtp <host:port>   SMTP server for notifications; emails are disabled
                          when unset (default: $VZOREC_SMTP_ADDR)
  -l, -log <path>         log file path (default: no file, stdout/stderr only)
  -h, -help               show this help and exit
`)
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "unexpected argument: %s\n", fs.Arg(0))
		fs.Usage()
		os.Exit(1)
	}

	// Set up structured logging: INFO/WARN → stdout, ERROR → stderr.
	// Optionally also write to a log file.
	closeLog, err := setupLogger(logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if closeLog != nil {
		defer closeLog()
	}

	// Check if DB exists, auto-init if not.
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		database, password, err := initDatabase(dbPath, adminEmail)
		if err != nil {
			slog.Error("failed to initialize database", "error", err)
			os.Exit(1)
		}
		database.Close()

		printInitResult(dbPath, adminEmail, password)
		fmt.Println()
	}

	// Open database.
	database, err := db.Open(dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	// Ensure schema exists and apply migrations (idempotent).
	if err := db.Migrate(database); err != nil {
		slog.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	slog.Info("database ready", "path", dbPath)

	// Secrets live in the database and are auto-generated on first run.
	jwtSecret, err := store.GetJWTSecret(context.Background(), database)
	if err != nil {
		slog.Error("failed to get JWT secret", "error", err)
		os.Exit(1)
	}

	signatureKey, err := store.GetSignatureKey(context.Background(), database)
	if err != nil {
		slog.Error("failed to get signature key", "error", err)
		os.Exit(1)
	}

	blobs, err := openBlobStore(blobDriver, blobDir)
	if err != nil {
		slog.Error("failed to set up blob storage", "error", err)
		os.Exit(1)
	}
	slog.Info("blob storage ready", "driver", blobs.Driver())

	encoder, err := evidence.NewEncoder(signatureKey, blobs)
	if err != nil {
		slog.Error("failed to set up evidence encoder", "error", err)
		os.Exit(1)
	}

	var notifier notify.Notifier
	if smtpAddr != "" {
		notifier = newSMTPNotifier(smtpAddr)
		slog.Info("email notifications enabled", "smtp", smtpAddr, "admin", adminEmail)
	} else {
		slog.Info("email notifications disabled, no SMTP server configured")
	}

	svc := &coc.Service{
		DB:          database,
		Encoder:     encoder,
		Notifier:    notifier,
		LabIntakeID: intakeID,
		AdminEmail:  adminEmail,
	}

	handler := api.LoggingMiddleware(api.NewRouter(database, jwtSecret, svc, blobs))

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-quit
		slog.Info("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "addr", addr, "intake", intakeID)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped, closing database")
}

// openBlobStore constructs the photo storage backend for the given driver.
func openBlobStore(driver, dir string) (blob.Store, error) {
	switch blob.Driver(driver) {
	case blob.DriverFilesystem:
		return blob.NewFilesystem(dir, envOr("VZOREC_BLOB_URL", ""))
	case blob.DriverS3:
		return blob.NewS3FromEnv(context.Background())
	case blob.DriverMemory:
		return blob.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", driver)
	}
}

// newSMTPNotifier builds the SMTP mailer. Credentials come from
// VZOREC_SMTP_USER and VZOREC_SMTP_PASS; plain auth is skipped when unset.
func newSMTPNotifier(addr string) *notify.SMTP {
	n := &notify.SMTP{
		Addr: addr,
		From: envOr("VZOREC_SMTP_FROM", "noreply@vzorec.local"),
	}
	if user := os.Getenv("VZOREC_SMTP_USER"); user != "" {
		host := addr
		if i := strings.LastIndex(addr, ":"); i >= 0 {
			host = addr[:i]
		}
		n.Auth = smtp.PlainAuth("", user, os.Getenv("VZOREC_SMTP_PASS"), host)
	}
	return n
}

// initDatabase creates a new database, ensures the schema, and creates the
// lab admin account.
func initDatabase(path, adminEmail string) (*sql.DB, string, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("opening database: %w", err)
	}

	if err := db.Migrate(database); err != nil {
		database.Close()
		os.Remove(path)
		return nil, "", fmt.Errorf("ensuring schema: %w", err)
	}

	password, err := generatePassword(16)
	if err != nil {
		database.Close()
		os.Remove(path)
		return nil, "", fmt.Errorf("generating password: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		database.Close()
		os.Remove(path)
		return nil, "", fmt.Errorf("hashing password: %w", err)
	}

	ctx := context.Background()
	_, err = store.CreateUser(ctx, database, adminEmail, "Lab Admin", string(hash), model.RoleLabAdmin, "")
	if err != nil {
		database.Close()
		os.Remove(path)
		return nil, "", fmt.Errorf("creating admin user: %w", err)
	}

	return database, password, nil
}

// printInitResult prints the database initialization result to stdout.
func printInitResult(dbPath, email, password string) {
	fmt.Printf("Database created: %s\n", dbPath)
	fmt.Println("Schema initialized.")
	fmt.Println()
	fmt.Println("Lab admin account created:")
	fmt.Printf("  Email:    %s\n", email)
	fmt.Printf("  Password: %s\n", password)
	fmt.Println()
	fmt.Println("Save this password — it cannot be recovered.")
	fmt.Println("The admin can change it after logging in.")
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
