// internal/infra/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Cart store kinds.
const (
	StoreMemory    = "memory"
	StoreFirestore = "firestore"
	StorePostgres  = "postgres"
	StoreSQLite    = "sqlite"
	StoreRedis     = "redis"
)

// Config holds the environment settings of the cart service.
// Precedence: env > YAML file (STOREFRONT_CONFIG) > defaults.
type Config struct {
	Port      string `yaml:"port"`
	CartStore string `yaml:"cartStore"`

	GCPProjectID             string `yaml:"gcpProjectId"`
	GCPCreds                 string `yaml:"-"`
	FirestoreProjectID       string `yaml:"firestoreProjectId"`
	FirestoreCredentialsFile string `yaml:"firestoreCredentialsFile"`
	FirebaseProjectID        string `yaml:"firebaseProjectId"`

	DB         DBConfig `yaml:"db"`
	SQLitePath string   `yaml:"sqlitePath"`
	RedisURL   string   `yaml:"redisUrl"`

	CORSAllowOrigin string `yaml:"corsAllowOrigin"`

	// AuthDevTokens accepts "dev:<uid>" bearer tokens instead of Firebase ID
	// tokens. Local stores only.
	AuthDevTokens bool `yaml:"authDevTokens"`

	Log LogConfig `yaml:"log"`

	// ProductStock seeds the catalog: the in-memory one, the products table of
	// the SQL stores, or the Redis stock hash. Firestore catalogs are managed elsewhere.
	ProductStock map[string]int `yaml:"productStock"`
}

// DBConfig configures the Postgres cart store.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"-"`
	// PasswordSecret is a Secret Manager secret id (or full resource name)
	// resolved at startup when Password is empty.
	PasswordSecret string `yaml:"passwordSecret"`
	Name           string `yaml:"name"`
	SSLMode        string `yaml:"sslMode"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Port:            "8080",
		CartStore:       StoreMemory,
		DB:              DBConfig{Host: "localhost", Port: "5432", Name: "storefront", SSLMode: "disable"},
		SQLitePath:      "storefront.db",
		CORSAllowOrigin: "*",
		Log:             LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads the optional YAML file named by STOREFRONT_CONFIG, then applies
// environment overrides.
func Load() (*Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("STOREFRONT_CONFIG")); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	setFromEnv(&c.Port, "PORT")
	setFromEnv(&c.CartStore, "CART_STORE")

	setFromEnv(&c.GCPProjectID, "GCP_PROJECT_ID")
	setFromEnv(&c.GCPCreds, "GOOGLE_APPLICATION_CREDENTIALS")
	setFromEnv(&c.FirestoreProjectID, "FIRESTORE_PROJECT_ID")
	setFromEnv(&c.FirestoreCredentialsFile, "FIRESTORE_CREDENTIALS_FILE")
	setFromEnv(&c.FirebaseProjectID, "FIREBASE_PROJECT_ID")

	setFromEnv(&c.DB.Host, "DB_HOST")
	setFromEnv(&c.DB.Port, "DB_PORT")
	setFromEnv(&c.DB.User, "DB_USER")
	setFromEnv(&c.DB.Password, "DB_PASSWORD")
	setFromEnv(&c.DB.PasswordSecret, "DB_PASSWORD_SECRET")
	setFromEnv(&c.DB.Name, "DB_NAME")
	setFromEnv(&c.DB.SSLMode, "DB_SSLMODE")
	setFromEnv(&c.SQLitePath, "SQLITE_PATH")
	setFromEnv(&c.RedisURL, "REDIS_URL")

	setFromEnv(&c.CORSAllowOrigin, "CORS_ALLOW_ORIGIN")
	if v, ok := boolFromEnv("AUTH_DEV_TOKENS"); ok {
		c.AuthDevTokens = v
	}
	setFromEnv(&c.Log.Level, "LOG_LEVEL")
	setFromEnv(&c.Log.Format, "LOG_FORMAT")

	c.CartStore = strings.ToLower(strings.TrimSpace(c.CartStore))

	// Firestore / Firebase fall back to the base GCP project.
	if c.FirestoreProjectID == "" {
		c.FirestoreProjectID = firstNonEmpty(c.GCPProjectID, os.Getenv("GOOGLE_CLOUD_PROJECT"))
	}
	if c.FirebaseProjectID == "" {
		c.FirebaseProjectID = c.FirestoreProjectID
	}
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.CartStore {
	case StoreMemory, StoreSQLite:
	case StoreFirestore:
		if c.FirestoreProjectID == "" {
			return errors.New("config: CART_STORE=firestore requires FIRESTORE_PROJECT_ID or GCP_PROJECT_ID")
		}
	case StorePostgres:
		if c.DB.Host == "" || c.DB.Name == "" || c.DB.User == "" {
			return errors.New("config: CART_STORE=postgres requires DB_HOST, DB_NAME and DB_USER")
		}
	case StoreRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			return errors.New("config: CART_STORE=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("config: unknown CART_STORE %q", c.CartStore)
	}
	if c.AuthDevTokens && c.CartStore != StoreMemory && c.CartStore != StoreSQLite {
		return errors.New("config: AUTH_DEV_TOKENS is only allowed with CART_STORE=memory or sqlite")
	}
	if strings.TrimSpace(c.Port) == "" {
		return errors.New("config: PORT is empty")
	}
	return nil
}

// CredentialsFile returns the explicit GCP credentials file, if any.
func (c *Config) CredentialsFile() string {
	return firstNonEmpty(c.FirestoreCredentialsFile, c.GCPCreds)
}

func setFromEnv(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func boolFromEnv(key string) (bool, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
