// Package runtime wires configuration into a running payme server.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"

	app "github.com/R3E-Network/payme/internal/app"
	"github.com/R3E-Network/payme/internal/app/domain/invoice"
	"github.com/R3E-Network/payme/internal/app/httpapi"
	"github.com/R3E-Network/payme/internal/app/services/invoices"
	"github.com/R3E-Network/payme/internal/app/storage"
	"github.com/R3E-Network/payme/internal/chain"
	"github.com/R3E-Network/payme/internal/config"
	"github.com/R3E-Network/payme/internal/logging"
	"github.com/R3E-Network/payme/internal/metrics"
	"github.com/R3E-Network/payme/internal/middleware"
	"github.com/R3E-Network/payme/internal/ratelimit"
)

const serviceName = "payme"

// Application wires core dependencies and manages the HTTP server lifecycle.
type Application struct {
	cfg     *config.Config
	log     *logging.Logger
	metrics *metrics.Metrics

	store   storage.Store
	limiter ratelimit.Limiter
	redis   *redis.Client
	cron    *cron.Cron
	handler http.Handler
	server  *http.Server

	initOnce sync.Once
	initErr  error
}

// NewApplication builds the store, services, middleware chain and HTTP
// server described by cfg. Storage failures are logged and leave the server
// running with every record request failing as BACKEND_UNAVAILABLE.
func NewApplication(ctx context.Context, cfg *config.Config, log *logging.Logger) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if log == nil {
		log = logging.NewDefault(serviceName)
	}

	a := &Application{cfg: cfg, log: log, metrics: metrics.New()}

	if err := a.InitializeStorage(ctx); err != nil {
		log.WithError(err).WithField("driver", cfg.Database.Driver).Error("storage initialisation failed")
	}

	limiter, client, err := newLimiter(ctx, cfg.RateLimit)
	if err != nil {
		a.closeBackends()
		return nil, fmt.Errorf("configure rate limiter: %w", err)
	}
	a.limiter, a.redis = limiter, client

	a.cron, err = newScheduler(cfg.RateLimit, limiter, log, a.metrics)
	if err != nil {
		a.closeBackends()
		return nil, err
	}

	services := app.New(app.Stores{Invoices: a.store, Contacts: a.store}, invoices.Options{
		FrontendBaseURL: cfg.FrontendBaseURL,
		ChainID:         cfg.Tempo.ChainID,
		RPCURL:          cfg.Tempo.RPCURL,
		StablecoinName:  cfg.Tempo.StablecoinName,
		TTL:             cfg.Invoices.TTL,
		Policy:          invoice.PaymentPolicy(cfg.Invoices.PaymentPolicy),
	}, log, a.metrics)

	router := httpapi.NewHandler(services, httpapi.Options{
		Metrics:    a.metrics.Handler(),
		Diagnostic: a.diagnostic(),
	})
	a.handler = a.chain(router)

	a.server = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           a.handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
	return a, nil
}

// InitializeStorage opens the configured store and applies its schema. It
// runs once; later calls return the first result. When the store cannot be
// opened an offline stand-in takes its place.
func (a *Application) InitializeStorage(ctx context.Context) error {
	a.initOnce.Do(func() {
		store, err := openStore(ctx, a.cfg)
		if err != nil {
			a.store = newOfflineStore(driverKind(a.cfg.Database.Driver), err)
			a.initErr = err
			return
		}
		a.store = store

		if m, ok := store.(migrator); ok {
			if err := m.Migrate(ctx); err != nil {
				a.initErr = fmt.Errorf("migrate %s: %w", store.Kind(), err)
				return
			}
		}
		a.log.WithField("store", store.Kind()).Info("database initialized")
	})
	return a.initErr
}

// chain wraps router in the middleware stack, outermost first: tracing,
// recovery, metrics, CORS, rate limiting, wallet auth.
func (a *Application) chain(router *mux.Router) http.Handler {
	var h http.Handler = router
	h = middleware.NewWalletAuthMiddleware(a.log, a.metrics).Handler(h)
	h = middleware.NewRateLimiter(a.limiter, a.log, middleware.RateLimiterOptions{
		Algorithm:         a.cfg.RateLimit.Algorithm,
		Window:            a.cfg.RateLimit.Window.String(),
		TrustProxyHeaders: a.cfg.RateLimit.TrustProxyHeaders,
		Metrics:           a.metrics,
	}).Handler(h)
	h = middleware.NewCORSMiddleware(a.cfg.AllowedOrigins()).Handler(h)
	h = middleware.MetricsMiddleware(serviceName, a.metrics, router)(h)
	h = middleware.RecoveryMiddleware(a.log)(h)
	h = middleware.NewTracingMiddleware(a.log).Handler(h)
	return h
}

func (a *Application) diagnostic() *httpapi.Diagnostic {
	d := &httpapi.Diagnostic{
		Store:           a.store,
		URLProvided:     a.cfg.Database.URL != "",
		ChainID:         a.cfg.Tempo.ChainID,
		Vercel:          a.cfg.Platform.Vercel != "",
		FrontendBaseURL: a.cfg.FrontendBaseURL,
		Secrets:         []string{a.cfg.Database.URL, a.cfg.RateLimit.RedisURL},
	}
	client, err := chain.NewClient(chain.Config{RPCURL: a.cfg.Tempo.RPCURL, Timeout: 5 * time.Second})
	if err != nil {
		a.log.WithError(err).Warn("chain probe disabled")
		return d
	}
	d.Chain = client
	return d
}

// Handler returns the fully wrapped HTTP handler.
func (a *Application) Handler() http.Handler {
	return a.handler
}

// Store returns the active record store.
func (a *Application) Store() storage.Store {
	return a.store
}

// Run starts the scheduler and HTTP server and blocks until the context is
// cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *Application) Serve(ctx context.Context, ln net.Listener) error {
	a.cron.Start()
	errCh := make(chan error, 1)

	go func() {
		a.log.WithField("addr", ln.Addr().String()).Info("HTTP server listening")
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown drains in-flight requests, stops the scheduler and closes the
// store.
func (a *Application) Shutdown(ctx context.Context) error {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := a.server.Shutdown(shutdownCtx)

	select {
	case <-a.cron.Stop().Done():
	case <-shutdownCtx.Done():
	}

	a.closeBackends()
	return err
}

func (a *Application) closeBackends() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.WithError(err).Warn("error closing store")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WithError(err).Warn("error closing redis client")
		}
	}
}
