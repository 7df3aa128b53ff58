// Package app wires the docqa runtime: config, logging, the credential store,
// the API client, the session controller, the CLI and the local portal.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"docqa/cmd/internal/apiclient"
	"docqa/cmd/internal/auth/credstore"
	"docqa/cmd/internal/auth/session"
	"docqa/cmd/internal/forms"
	"docqa/cmd/internal/portal"
)

// App owns every long-lived dependency of one docqa process.
type App struct {
	cfg Config
	log Logger

	store credstore.Store
	pool  *pgxpool.Pool

	registry *prometheus.Registry
	client   *apiclient.Client
	session  *session.Controller
	forms    *forms.Validator
}

// New constructs a fully wired App. The session is still Loading until Start.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if insecureTransport(cfg.APIBaseURL) {
		log.Warn("app.insecure_transport", "base_url", cfg.APIBaseURL)
	}

	store, pool, err := newStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	metrics, err := apiclient.NewMetrics(reg)
	if err != nil {
		closePool(pool)
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		log:      log,
		store:    store,
		pool:     pool,
		registry: reg,
		forms:    forms.New(cfg.Password, cfg.MaxUploadBytes),
	}

	a.client, err = apiclient.New(cfg.APIBaseURL, store,
		apiclient.WithTimeout(cfg.HTTPTimeout),
		apiclient.WithLogger(log),
		apiclient.WithMetrics(metrics),
		apiclient.WithReauthHandler(func(err error) { a.session.Expire(err) }),
	)
	if err != nil {
		closePool(pool)
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	a.session = session.NewController(
		session.Config{ExpiryMargin: cfg.ExpiryMargin},
		a.client,
		store,
		session.WithLogger(log),
	)
	return a, nil
}

// Start restores the stored session.
func (a *App) Start(ctx context.Context) error {
	return a.session.Start(ctx)
}

// Close releases the credential database pool, if any.
func (a *App) Close() {
	closePool(a.pool)
}

// Serve runs the portal until ctx is cancelled or the listener fails.
func (a *App) Serve(ctx context.Context) error {
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	if err := registerHTTP(mux, a); err != nil {
		return err
	}

	pc := a.cfg.Portal
	srv := &http.Server{
		Addr:              pc.Addr,
		Handler:           WithSecurityHeaders(WithRequestLogging(mux, a.log)),
		ReadHeaderTimeout: nonZeroDuration(pc.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(pc.ReadTimeout, 2*time.Minute),
		WriteTimeout:      nonZeroDuration(pc.WriteTimeout, 2*time.Minute),
		IdleTimeout:       nonZeroDuration(pc.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(pc.MaxHeaderBytes, 1<<20),
	}

	ln, err := net.Listen("tcp", pc.Addr)
	if err != nil {
		return fmt.Errorf("portal listen: %w", err)
	}
	a.log.Info("portal.start", "addr", ln.Addr().String(), "url", runtimeBaseURL(ln.Addr().String()))

	// Restore after the socket is bound: early requests see Loading, not a refused connection.
	go func() {
		if err := a.Start(ctx); err != nil {
			a.log.Warn("portal.session_restore.fail", "err", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("portal.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("portal.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("portal.shutdown.fail", "err", err)
		return err
	}
	a.log.Info("portal.stopped")
	return nil
}

func (a *App) portalHandler() (*portal.Handler, error) {
	return portal.NewHandler(
		portal.Config{MaxBodyBytes: a.cfg.Portal.MaxBodyBytes},
		a.session,
		a.client,
		a.forms,
		portal.WithLogger(a.log),
	)
}

// newStore picks the credential backend: Postgres when a database URL is
// configured, otherwise the token file (or memory for MemoryCredentials).
func newStore(ctx context.Context, cfg Config, log Logger) (credstore.Store, *pgxpool.Pool, error) {
	if cfg.CredentialsDatabaseURL != "" {
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		st, err := credstore.NewPostgresStore(pool, cfg.CredentialsProfile)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		if err := st.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("credentials schema: %w", err)
		}
		log.Debug("credstore.postgres", "profile", cfg.CredentialsProfile)
		return st, pool, nil
	}

	if cfg.CredentialsPath == MemoryCredentials {
		log.Debug("credstore.memory")
		return credstore.NewMemoryStore(), nil, nil
	}

	path := cfg.CredentialsPath
	if path == "" {
		p, err := credstore.DefaultFilePath()
		if err != nil {
			return nil, nil, err
		}
		path = p
	}
	st, err := credstore.NewFileStore(path)
	if err != nil {
		return nil, nil, err
	}
	log.Debug("credstore.file", "path", st.Path())
	return st, nil, nil
}

func closePool(pool *pgxpool.Pool) {
	if pool != nil {
		pool.Close()
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// runtimeBaseURL turns a bound listener address into a URL a local browser can open.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}
