// internal/platform/di/shared/infra.go
package shared

import (
	"context"
	"errors"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	appcfg "storefront/internal/infra/config"
	"storefront/internal/infra/database"
	firestoreinfra "storefront/internal/infra/firestore"
	redisinfra "storefront/internal/infra/redis"
	"storefront/internal/infra/secrets"
)

// Infra is shared runtime infrastructure for DI.
//   - owns external clients (Firestore, Firebase Auth, Secret Manager, SQL, Redis)
//   - only the clients the configured cart store needs are strict
//
// Infra must not depend on routers, handlers or usecases.
type Infra struct {
	Config *appcfg.Config
	Log    *zap.Logger

	// Clients (owned; Close-managed)
	Firestore     *firestoreinfra.ClientWrapper
	FirebaseApp   *firebase.App
	FirebaseAuth  *firebaseauth.Client
	SecretManager *secretmanager.Client
	Secrets       *secrets.Provider
	SQL           *database.DB
	Redis         *redis.Client
}

// NewInfra initializes shared infra for cfg.CartStore.
// The store's own backend is strict (error); Firebase Auth and Secret
// Manager are best-effort (warn + continue) unless the store needs them.
func NewInfra(ctx context.Context, cfg *appcfg.Config, log *zap.Logger) (*Infra, error) {
	if cfg == nil {
		return nil, errors.New("shared.infra: config is nil")
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("shared.infra")

	inf := &Infra{Config: cfg, Log: log}

	var clientOpts []option.ClientOption
	if credFile := cfg.CredentialsFile(); credFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(credFile))
		log.Info("using credentials file for GCP clients", zap.String("file", redactPath(credFile)))
	}

	// 1) Secret Manager: required only to resolve DB_PASSWORD_SECRET
	needSecrets := cfg.CartStore == appcfg.StorePostgres && cfg.DB.PasswordSecret != "" && cfg.DB.Password == ""
	if needSecrets || cfg.GCPProjectID != "" {
		sm, err := secretmanager.NewClient(ctx, clientOpts...)
		if err != nil {
			if needSecrets {
				return nil, fmt.Errorf("shared.infra: secretmanager.NewClient: %w", err)
			}
			log.Warn("secretmanager.NewClient failed; secret-backed settings disabled", zap.Error(err))
		} else {
			inf.SecretManager = sm
			inf.Secrets = secrets.NewProvider(sm, firstNonEmpty(cfg.GCPProjectID, cfg.FirestoreProjectID))
		}
	}

	// 2) Cart store backend (strict)
	switch cfg.CartStore {
	case appcfg.StoreFirestore:
		fs, err := firestoreinfra.NewClient(ctx, cfg.FirestoreProjectID, cfg.CredentialsFile(), log)
		if err != nil {
			_ = inf.Close()
			return nil, fmt.Errorf("shared.infra: firestore (project=%s): %w", cfg.FirestoreProjectID, err)
		}
		inf.Firestore = fs

	case appcfg.StorePostgres:
		password := cfg.DB.Password
		if password == "" && cfg.DB.PasswordSecret != "" {
			pw, err := inf.Secrets.Get(ctx, cfg.DB.PasswordSecret)
			if err != nil {
				_ = inf.Close()
				return nil, fmt.Errorf("shared.infra: resolve DB_PASSWORD_SECRET: %w", err)
			}
			password = pw
		}
		db, err := database.NewPostgres(ctx, database.PostgresOptions{
			Host:     cfg.DB.Host,
			Port:     cfg.DB.Port,
			User:     cfg.DB.User,
			Password: password,
			DBName:   cfg.DB.Name,
			SSLMode:  cfg.DB.SSLMode,
		}, log)
		if err != nil {
			_ = inf.Close()
			return nil, fmt.Errorf("shared.infra: postgres: %w", err)
		}
		inf.SQL = db

	case appcfg.StoreSQLite:
		db, err := database.NewSQLite(ctx, cfg.SQLitePath, log)
		if err != nil {
			_ = inf.Close()
			return nil, fmt.Errorf("shared.infra: sqlite: %w", err)
		}
		inf.SQL = db

	case appcfg.StoreRedis:
		rc, err := redisinfra.NewClient(ctx, cfg.RedisURL, log)
		if err != nil {
			_ = inf.Close()
			return nil, fmt.Errorf("shared.infra: redis: %w", err)
		}
		inf.Redis = rc

	case appcfg.StoreMemory:
		log.Warn("cart store is in-memory; carts are lost on restart")
	}

	// 3) Firebase App/Auth (best-effort)
	if cfg.AuthDevTokens {
		log.Warn("AUTH_DEV_TOKENS enabled; Firebase Auth is not initialized")
	} else if cfg.FirebaseProjectID != "" {
		fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.FirebaseProjectID}, clientOpts...)
		if err != nil {
			log.Warn("firebase app init failed", zap.Error(err))
		} else {
			inf.FirebaseApp = fbApp
			authClient, err := fbApp.Auth(ctx)
			if err != nil {
				log.Warn("firebase auth init failed", zap.Error(err))
			} else {
				inf.FirebaseAuth = authClient
				log.Info("firebase auth initialized", zap.String("project", cfg.FirebaseProjectID))
			}
		}
	} else {
		log.Warn("FIREBASE_PROJECT_ID empty; bearer tokens will be rejected with 503")
	}

	return inf, nil
}

func (i *Infra) Close() error {
	if i == nil {
		return nil
	}
	var errs []error
	if i.Firestore != nil {
		errs = append(errs, i.Firestore.Close())
	}
	if i.SQL != nil {
		errs = append(errs, i.SQL.Close())
	}
	if i.Redis != nil {
		errs = append(errs, i.Redis.Close())
	}
	if i.SecretManager != nil {
		errs = append(errs, i.SecretManager.Close())
	}
	return errors.Join(errs...)
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func redactPath(p string) string {
	// Keep only the last segment
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = strings.ReplaceAll(p, "\\", "/")
	parts := strings.Split(p, "/")
	last := parts[len(parts)-1]
	if last == "" {
		return "***"
	}
	return "***/" + last
}
