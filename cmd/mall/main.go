// cmd/mall/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"storefront/internal/adapters/in/http/middleware"
	appcfg "storefront/internal/infra/config"
	"storefront/internal/infra/logging"
	mallDI "storefront/internal/platform/di/mall"
	shared "storefront/internal/platform/di/shared"
)

// atomicHandler allows swapping the underlying handler at runtime safely.
type atomicHandler struct {
	v atomic.Value // stores http.Handler
}

func newAtomicHandler(initial http.Handler) *atomicHandler {
	ah := &atomicHandler{}
	if initial == nil {
		initial = http.NotFoundHandler()
	}
	ah.v.Store(initial)
	return ah
}

func (h *atomicHandler) Store(next http.Handler) {
	if next == nil {
		return
	}
	h.v.Store(next)
}

func (h *atomicHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cur := h.v.Load()
	if cur == nil {
		http.NotFound(w, r)
		return
	}
	cur.(http.Handler).ServeHTTP(w, r)
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// chain applies the outer middleware shared by every mux.
func chain(h http.Handler, cfg *appcfg.Config, log *zap.Logger) http.Handler {
	h = middleware.CORS(cfg.CORSAllowOrigin)(h)
	h = middleware.RequestLog(log)(h)
	return middleware.Recover(log)(h)
}

func main() {
	ctx := context.Background()

	cfg, err := appcfg.Load()
	if err != nil {
		// logger config comes from cfg; fall back to a production logger
		zap.Must(zap.NewProduction()).Fatal("config load failed", zap.Error(err))
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		zap.Must(zap.NewProduction()).Fatal("logger init failed", zap.Error(err))
	}
	defer func() { _ = log.Sync() }()
	boot := log.Named("boot")

	// ─────────────────────────────────────────────────────────────
	// Start listening ASAP with lightweight mux (healthz only)
	// ─────────────────────────────────────────────────────────────
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", healthz)

	switcher := newAtomicHandler(chain(healthMux, cfg, log))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      switcher,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ─────────────────────────────────────────────────────────────
	// Lifetime management (container owns infra)
	// ─────────────────────────────────────────────────────────────
	var mallHolder atomic.Pointer[mallDI.Container]

	shuttingDown := make(chan struct{})

	// ─────────────────────────────────────────────────────────────
	// Graceful shutdown
	// ─────────────────────────────────────────────────────────────
	idleConnsClosed := make(chan struct{})
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		sig := <-c

		close(shuttingDown)
		boot.Info("received signal; shutting down", zap.String("signal", sig.String()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			boot.Error("server shutdown error", zap.Error(err))
		}

		if cont := mallHolder.Swap(nil); cont != nil {
			boot.Info("closing mall container resources")
			if err := cont.Close(); err != nil {
				boot.Error("mall container close error", zap.Error(err))
			}
		}

		close(idleConnsClosed)
	}()

	// Start server NOW; DI may take a while (GCP clients)
	go func() {
		boot.Info("listening", zap.String("port", cfg.Port), zap.String("store", cfg.CartStore))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			boot.Fatal("server error", zap.Error(err))
		}
	}()

	// ─────────────────────────────────────────────────────────────
	// Heavy DI init in background; then swap handler to full app mux
	// ─────────────────────────────────────────────────────────────
	go func() {
		initCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()

		// 1) shared infra
		infra, err := shared.NewInfra(initCtx, cfg, log)
		if err != nil {
			boot.Error("shared infra init failed; serving /healthz only", zap.Error(err))
			return
		}

		// 2) mall container (required)
		mallCont, err := mallDI.NewContainer(initCtx, infra)
		if err != nil {
			_ = infra.Close()
			boot.Error("mall di init failed; serving /healthz only", zap.Error(err))
			return
		}
		mallHolder.Store(mallCont)

		select {
		case <-shuttingDown:
			if cont := mallHolder.Swap(nil); cont != nil {
				_ = cont.Close()
			}
			return
		default:
		}

		fullMux := http.NewServeMux()

		// keep healthz
		fullMux.HandleFunc("/healthz", healthz)

		// 3) mall routes
		mallDI.Register(fullMux, mallCont)
		boot.Info("mall routes registered")

		switcher.Store(chain(fullMux, cfg, log))
		boot.Info("handler switched to mall router")
	}()

	<-idleConnsClosed
	boot.Info("server stopped")
}
