// internal/infra/database/connection.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

type DB struct {
	Client *sql.DB
	// Driver is the database/sql driver name: "postgres" or "sqlite".
	Driver string
}

// PostgresOptions are the connection parameters for NewPostgres.
type PostgresOptions struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// NewPostgres initializes a PostgreSQL connection (lib/pq).
func NewPostgres(ctx context.Context, o PostgresOptions, log *zap.Logger) (*DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	sslMode := o.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(o.User, o.Password),
		Host:     o.Host + ":" + o.Port,
		Path:     "/" + o.DBName,
		RawQuery: url.Values{"sslmode": []string{sslMode}}.Encode(),
	}

	db, err := sql.Open("postgres", u.String())
	if err != nil {
		return nil, fmt.Errorf("failed to open DB: %w", err)
	}

	// Connection pool tuning
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)

	if err := ping(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Named("db").Info("connected to PostgreSQL", zap.String("host", o.Host), zap.String("db", o.DBName))
	return &DB{Client: db, Driver: "postgres"}, nil
}

// NewSQLite opens (or creates) a SQLite database (modernc, pure Go).
// path ":memory:" gives a private in-memory database.
func NewSQLite(ctx context.Context, path string, log *zap.Logger) (*DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open DB: %w", err)
	}

	// SQLite only supports one writer at a time; one connection also keeps
	// ":memory:" databases from splitting per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := ping(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Named("db").Info("opened SQLite", zap.String("path", path))
	return &DB{Client: db, Driver: "sqlite"}, nil
}

func ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping DB: %w", err)
	}
	return nil
}

// Close is safe on nil.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
