/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/smartlists/internal/api"
	"github.com/friendsincode/smartlists/internal/audit"
	"github.com/friendsincode/smartlists/internal/catalog"
	"github.com/friendsincode/smartlists/internal/config"
	"github.com/friendsincode/smartlists/internal/db"
	"github.com/friendsincode/smartlists/internal/engine"
	"github.com/friendsincode/smartlists/internal/eventbus"
	"github.com/friendsincode/smartlists/internal/events"
	"github.com/friendsincode/smartlists/internal/integrity"
	"github.com/friendsincode/smartlists/internal/leadership"
	"github.com/friendsincode/smartlists/internal/logbuffer"
	"github.com/friendsincode/smartlists/internal/models"
	"github.com/friendsincode/smartlists/internal/reconcile"
	"github.com/friendsincode/smartlists/internal/refresh"
	"github.com/friendsincode/smartlists/internal/scheduler"
	"github.com/friendsincode/smartlists/internal/sink"
	"github.com/friendsincode/smartlists/internal/status"
	"github.com/friendsincode/smartlists/internal/store"
	"github.com/friendsincode/smartlists/internal/supervisor"
	"github.com/friendsincode/smartlists/internal/telemetry"
	"github.com/friendsincode/smartlists/internal/version"
)

// connectionMetricsInterval is how often pool gauges are sampled.
const connectionMetricsInterval = 15 * time.Second

// Server bundles the refresh pipeline, its HTTP surfaces and the
// supervisor tree that runs them.
type Server struct {
	cfg     *config.Config
	logger  zerolog.Logger
	router  chi.Router
	closers []func() error

	httpServer    *http.Server
	metricsServer *http.Server

	db           *gorm.DB
	bus          *events.Bus
	tracer       *telemetry.TracerProvider
	store        *store.GormStore
	engine       *engine.Engine
	tracker      *status.Tracker
	queue        *refresh.Queue
	orchestrator *refresh.Orchestrator
	lists        *refresh.Service
	scheduler    *scheduler.Service
	leaderAware  *scheduler.LeaderAwareScheduler
	election     *leadership.Election
	relay        *eventbus.Relay
	audit        *audit.Service
	integrity    *integrity.Service
	logBuffer    *logbuffer.Buffer
	api          *api.API
}

// New constructs the server and wires dependencies. Nothing runs until Run.
// logBuf may be nil, in which case the logs endpoint is not mounted.
func New(ctx context.Context, cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.MetricsMiddleware)
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Event streams and synchronous batches outlive the request timeout.
			if r.Header.Get("Upgrade") == "websocket" || r.URL.Path == "/api/v1/refresh" {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		router:    router,
		bus:       events.NewBus(),
		logBuffer: logBuf,
	}

	if err := srv.initDependencies(ctx); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()

	srv.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           telemetry.TraceHandler(srv.router, "smartlists-api"),
		ReadHeaderTimeout: 15 * time.Second,
		// Handlers bound their own work; event streams stay open.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	if cfg.MetricsBind != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetry.Handler())
		srv.metricsServer = &http.Server{
			Addr:              cfg.MetricsBind,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return srv, nil
}

func (s *Server) initDependencies(ctx context.Context) error {
	tracer, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		ServiceName:    "smartlists",
		ServiceVersion: version.Version,
		OTLPEndpoint:   s.cfg.OTLPEndpoint,
		Enabled:        s.cfg.TracingEnabled,
		SampleRate:     s.cfg.TracingSampleRate,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	s.tracer = tracer
	s.DeferClose(func() error { return tracer.Shutdown(context.Background()) })

	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })
	if err := db.Migrate(database); err != nil {
		return err
	}

	s.store = store.New(database, s.logger)
	if s.cfg.LegacyDir != "" {
		report, err := s.store.MigrateLegacy(ctx, s.cfg.LegacyDir)
		if err != nil {
			return fmt.Errorf("migrate legacy lists: %w", err)
		}
		if len(report.Migrated) > 0 || len(report.Failed) > 0 {
			s.logger.Info().
				Int("migrated", len(report.Migrated)).
				Int("failed", len(report.Failed)).
				Str("dir", s.cfg.LegacyDir).
				Msg("legacy list definitions imported")
		}
	}

	provider := catalog.NewGormProvider(database, s.logger)
	artifacts := sink.New(database, s.logger)
	s.engine = engine.New(s.logger)
	s.tracker = status.NewTracker(s.cfg.HistorySize, s.bus, s.logger)
	s.queue = refresh.NewQueue()

	s.orchestrator = refresh.NewOrchestrator(refresh.Config{
		Engine:   s.engine,
		Provider: provider,
		Store:    s.store,
		Strategies: map[models.ListKind]reconcile.Strategy{
			models.ListKindPlaylist: reconcile.NewPlaylistReconciler(artifacts, reconcile.Options{
				Format:   reconcile.NameFormat{Prefix: s.cfg.PlaylistPrefix, Suffix: s.cfg.PlaylistSuffix},
				CoverArt: s.cfg.CoverArtEnabled,
			}, s.logger),
			models.ListKindCollection: reconcile.NewCollectionReconciler(artifacts, reconcile.Options{
				Format:   reconcile.NameFormat{Prefix: s.cfg.CollectionPrefix, Suffix: s.cfg.CollectionSuffix},
				CoverArt: s.cfg.CoverArtEnabled,
			}, s.logger),
		},
		Reporter:        s.tracker,
		Bus:             s.bus,
		Queue:           s.queue,
		PrefetchWorkers: s.cfg.PrefetchWorkers,
	}, s.logger)
	s.lists = refresh.NewService(s.engine, s.store, provider, s.orchestrator, s.bus, s.logger)

	if s.cfg.SchedulerEnabled {
		sched, err := scheduler.New(s.orchestrator, s.cfg.RefreshCron, s.logger)
		if err != nil {
			return fmt.Errorf("create scheduler: %w", err)
		}
		s.scheduler = sched
	}

	if s.cfg.LeaderElectionEnabled {
		electionConfig := leadership.DefaultConfig()
		electionConfig.RedisAddr = s.cfg.RedisAddr
		electionConfig.RedisPassword = s.cfg.RedisPassword
		electionConfig.RedisDB = s.cfg.RedisDB
		if s.cfg.InstanceID != "" {
			electionConfig.InstanceID = s.cfg.InstanceID
		}

		election, err := leadership.Dial(ctx, electionConfig, s.logger)
		if err != nil {
			return fmt.Errorf("create leader election: %w", err)
		}
		s.election = election
		s.DeferClose(election.Close)

		if s.scheduler != nil {
			s.leaderAware = scheduler.NewLeaderAware(s.scheduler, election, s.logger)
		}
		s.logger.Info().
			Str("instance_id", electionConfig.InstanceID).
			Msg("leader election enabled for scheduler")
	}

	if err := s.initRelay(ctx); err != nil {
		return err
	}

	s.audit = audit.NewService(database, s.bus, s.logger)
	s.integrity = integrity.NewService(database, s.audit, s.logger)

	deps := api.Deps{
		Lists:     s.lists,
		Batches:   s.orchestrator,
		Tracker:   s.tracker,
		Engine:    s.engine,
		Bus:       s.bus,
		Audit:     s.audit,
		Integrity: s.integrity,
		Logs:      s.logBuffer,
	}
	if s.scheduler != nil {
		deps.Schedule = s.scheduler
	}
	if s.election != nil {
		deps.Leader = s.election
	}
	s.api = api.New(deps, s.logger)

	return nil
}

// initRelay connects the cross-instance event relay when one is configured.
func (s *Server) initRelay(ctx context.Context) error {
	nodeID := s.cfg.InstanceID
	if s.election != nil {
		nodeID = s.election.InstanceID()
	}
	if nodeID == "" {
		nodeID = uuid.NewString()
	}

	var transport eventbus.Transport
	switch s.cfg.EventRelay {
	case "":
		return nil
	case config.EventRelayRedis:
		redisConfig := eventbus.DefaultRedisConfig()
		redisConfig.Addr = s.cfg.RedisAddr
		redisConfig.Password = s.cfg.RedisPassword
		redisConfig.DB = s.cfg.RedisDB
		t, err := eventbus.DialRedis(ctx, redisConfig, s.logger)
		if err != nil {
			return fmt.Errorf("connect event relay: %w", err)
		}
		transport = t
	case config.EventRelayNATS:
		natsConfig := eventbus.DefaultNATSConfig()
		natsConfig.URL = s.cfg.NATSURL
		t, err := eventbus.DialNATS(natsConfig, s.logger)
		if err != nil {
			return fmt.Errorf("connect event relay: %w", err)
		}
		transport = t
	default:
		return fmt.Errorf("unknown event relay %q", s.cfg.EventRelay)
	}
	s.DeferClose(transport.Close)

	s.relay = eventbus.NewRelay(s.bus, transport, nodeID, eventbus.DefaultTypes, s.logger)
	s.logger.Info().
		Str("transport", s.cfg.EventRelay).
		Str("node_id", nodeID).
		Msg("event relay enabled")
	return nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		response := `{"status":"ok"`
		if s.election != nil {
			if s.election.IsLeader() {
				response += `,"leader":true`
			} else {
				response += `,"leader":false`
			}
		}
		response += `}`
		_, _ = w.Write([]byte(response))
	})

	s.api.Routes(s.router)
}

// Handler exposes the HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Lists exposes the list management service.
func (s *Server) Lists() *refresh.Service {
	return s.lists
}

// RefreshOnce runs a single batch refresh without starting the tree.
func (s *Server) RefreshOnce(ctx context.Context, trigger models.Trigger) ([]models.RefreshResult, error) {
	return s.orchestrator.BatchRefresh(ctx, trigger)
}

// Integrity exposes the mapping integrity checker.
func (s *Server) Integrity() *integrity.Service {
	return s.integrity
}

// Tree assembles the supervisor tree. The refresh layer holds the queue
// consumer, the audit trail, the relay, the election and the scheduler; the
// api layer holds the HTTP listeners.
func (s *Server) Tree() *supervisor.Tree {
	tree := supervisor.NewTree(s.logger, supervisor.DefaultTreeConfig())

	tree.AddRefreshService(s.orchestrator)
	tree.AddRefreshService(s.audit)
	tree.AddRefreshService(&connectionMetrics{db: s.db, interval: connectionMetricsInterval})
	if s.relay != nil {
		tree.AddRefreshService(s.relay)
	}
	switch {
	case s.leaderAware != nil:
		tree.AddRefreshService(s.election)
		tree.AddRefreshService(s.leaderAware)
	case s.election != nil:
		tree.AddRefreshService(s.election)
	case s.scheduler != nil:
		tree.AddRefreshService(s.scheduler)
	}

	tree.AddAPIService(supervisor.NewHTTPService("http-api", s.httpServer, 10*time.Second))
	if s.metricsServer != nil {
		tree.AddAPIService(supervisor.NewHTTPService("metrics", s.metricsServer, 5*time.Second))
	}
	return tree
}

// Run serves until ctx is cancelled. On return the refresh queue is closed
// so late enqueues fail instead of being lost silently.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info().
		Str("addr", s.httpServer.Addr).
		Str("version", version.String()).
		Bool("scheduler", s.scheduler != nil).
		Bool("leader_election", s.election != nil).
		Str("event_relay", s.cfg.EventRelay).
		Msg("smartlists starting")

	err := s.Tree().Serve(ctx)
	s.queue.Close()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

// connectionMetrics samples database pool gauges.
type connectionMetrics struct {
	db       *gorm.DB
	interval time.Duration
}

func (c *connectionMetrics) Serve(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		db.UpdateConnectionMetrics(c.db)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *connectionMetrics) String() string { return "db-connection-metrics" }
