// Package app wires the chat server runtime: config, logging, storage mode,
// the REST surface, and the realtime gateway.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/IamJunnn/ecoblox-web-curriculum-sub000/internal/api"
	"github.com/IamJunnn/ecoblox-web-curriculum-sub000/internal/chat"
	"github.com/IamJunnn/ecoblox-web-curriculum-sub000/internal/identity"
	"github.com/IamJunnn/ecoblox-web-curriculum-sub000/internal/realtime"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow DB-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for in-memory store mode.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

type dbStore struct {
	pool *pgxpool.Pool
}

func (s dbStore) Close(_ context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// repos bundles the persistence ports the services are built on.
type repos struct {
	rooms        chat.RoomRepository
	participants chat.ParticipantRepository
	messages     chat.MessageRepository
	presence     chat.PresenceRepository
	roster       chat.Roster
	users        chat.UserDirectory
}

// App is the chat server runtime. It owns HTTP wiring, the realtime gateway,
// and storage lifecycle.
type App struct {
	cfg Config
	log Logger

	store Store

	dbPool    *pgxpool.Pool
	dbEnabled bool

	registry *prometheus.Registry

	gateway *realtime.Gateway
	rest    *api.API
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	st, dbPool, dbEnabled, r, err := newRepos(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	verifier, err := newVerifier(cfg, log, r)
	if err != nil {
		_ = st.Close(context.Background())
		return nil, err
	}

	directory := chat.NewDirectory(log, r.rooms, r.participants, r.messages, r.roster, r.users)
	messages := chat.NewMessages(log, r.messages, r.participants)
	presence := chat.NewPresence(log, r.presence)
	unread := chat.NewUnread(log, r.participants, r.messages)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := realtime.NewMetrics(registry)

	dispatcher := realtime.NewDispatcher(log, metrics)

	originRequired := cfg.WSOriginRequired
	gateway := realtime.NewGateway(log, realtime.Config{
		OriginRequired:    &originRequired,
		AllowedOrigins:    cfg.WSAllowedOrigins,
		DevInsecure:       cfg.WSDevInsecure,
		WriteTimeout:      cfg.WSWriteTimeout,
		ReadIdleTimeout:   cfg.WSReadIdleTimeout,
		SendQueueSize:     cfg.WSSendQueueSize,
		HeartbeatInterval: cfg.WSHeartbeatEvery,
		HeartbeatTimeout:  cfg.WSHeartbeatWait,
		RateEvents:        cfg.WSRateEvents,
		RateWindow:        cfg.WSRateWindow,
	}, verifier, realtime.Services{
		Directory: directory,
		Messages:  messages,
		Presence:  presence,
		Unread:    unread,
	}, dispatcher, metrics)

	rest := api.New(log, verifier, api.Services{
		Directory: directory,
		Messages:  messages,
		Presence:  presence,
		Unread:    unread,
	})

	return &App{
		cfg:       cfg,
		log:       log,
		store:     st,
		dbPool:    dbPool,
		dbEnabled: dbEnabled,
		registry:  registry,
		gateway:   gateway,
		rest:      rest,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	a.rest.Register(e)

	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.registry, a.gateway, e)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(mux, a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	if err := a.store.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
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

// newRepos decides between Postgres-backed persistence and the in-memory dev
// store.
func newRepos(ctx context.Context, cfg Config, log Logger) (Store, *pgxpool.Pool, bool, repos, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")

		mem := chat.NewMemoryStore()
		roster := chat.NewMemoryRoster()
		users := chat.NewMemoryUserDirectory()

		seedDevRoster(cfg.DevRoster, roster, log)

		return nopStore{}, nil, false, repos{
			rooms:        mem,
			participants: mem,
			messages:     mem,
			presence:     mem,
			roster:       roster,
			users:        users,
		}, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, false, repos{}, err
	}

	log.Info("db.enabled.postgres_store", "schema", cfg.DBSchema)

	// Ownership model:
	// - app owns pool lifecycle
	// - stores never close the pool
	pg, err := chat.NewPostgresStore(pool, chat.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, nil, false, repos{}, err
	}
	roster, err := chat.NewPostgresRoster(pool, cfg.DBSchema)
	if err != nil {
		pool.Close()
		return nil, nil, false, repos{}, err
	}
	users, err := chat.NewPostgresUserDirectory(pool, cfg.DBSchema)
	if err != nil {
		pool.Close()
		return nil, nil, false, repos{}, err
	}

	return dbStore{pool: pool}, pool, true, repos{
		rooms:        pg,
		participants: pg,
		messages:     pg,
		presence:     pg,
		roster:       roster,
		users:        users,
	}, nil
}

// newVerifier picks the token verifier. The PASETO public key wins; dev
// tokens are a fallback for local runs and never silently enabled.
func newVerifier(cfg Config, log Logger, r repos) (identity.Verifier, error) {
	if cfg.PasetoPublicKeyHex != "" {
		v, err := identity.NewPasetoVerifier(cfg.PasetoPublicKeyHex, cfg.PasetoIssuer, cfg.PasetoClockSkew)
		if err != nil {
			return nil, fmt.Errorf("paseto verifier: %w", err)
		}
		log.Info("auth.verifier.paseto", "issuer", cfg.PasetoIssuer)
		return v, nil
	}

	if cfg.DevTokens != "" {
		v, err := identity.ParseStaticTokens(cfg.DevTokens)
		if err != nil {
			return nil, fmt.Errorf("dev tokens: %w", err)
		}
		log.Warn("auth.verifier.static_dev_tokens")

		// Dev identities double as directory fixtures in memory mode.
		if users, ok := r.users.(*chat.MemoryUserDirectory); ok {
			for _, id := range v.Identities() {
				users.Put(chat.UserProfile{ID: id.UserID, Name: id.Name, Role: id.Role})
			}
		}
		return v, nil
	}

	return nil, errors.New("no token verifier configured: set ECOBLOX_PASETO_PUBLIC_KEY_HEX or ECOBLOX_DEV_TOKENS")
}

// seedDevRoster parses "studentID:teacherID" pairs into the memory roster.
func seedDevRoster(spec string, roster *chat.MemoryRoster, log Logger) {
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			log.Warn("dev.roster.skip", "entry", entry)
			continue
		}
		roster.Assign(parts[0], parts[1])
	}
}
