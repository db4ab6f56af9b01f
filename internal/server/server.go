// Package server provides the HTTP server setup and wiring.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	admindomain "github.com/pendergraft/revealer/internal/admin/domain"
	admintransport "github.com/pendergraft/revealer/internal/admin/transport"
	"github.com/pendergraft/revealer/internal/auth"
	"github.com/pendergraft/revealer/internal/config"
	"github.com/pendergraft/revealer/internal/escrow"
	"github.com/pendergraft/revealer/internal/events"
	eventstransport "github.com/pendergraft/revealer/internal/events/transport"
	"github.com/pendergraft/revealer/internal/hmacauth"
	"github.com/pendergraft/revealer/internal/ident"
	"github.com/pendergraft/revealer/internal/middleware/logging"
	"github.com/pendergraft/revealer/internal/middleware/ratelimit"
	"github.com/pendergraft/revealer/internal/middleware/security"
	"github.com/pendergraft/revealer/internal/observability/metrics"
	"github.com/pendergraft/revealer/internal/oracle/dispatch"
	oracledomain "github.com/pendergraft/revealer/internal/oracle/domain"
	oracletransport "github.com/pendergraft/revealer/internal/oracle/transport"
	requestsdomain "github.com/pendergraft/revealer/internal/requests/domain"
	requeststransport "github.com/pendergraft/revealer/internal/requests/transport"
	"github.com/pendergraft/revealer/internal/storage"
	"github.com/pendergraft/revealer/internal/token"
	tokentransport "github.com/pendergraft/revealer/internal/token/transport"
	"github.com/pendergraft/revealer/internal/validation"
)

// DevConsumer holds escrowed funds when neither CONSUMER_ADDRESS nor an
// on-chain signer is configured.
var DevConsumer = common.BytesToAddress(crypto.Keccak256([]byte("revealer.consumer"))[12:])

// Broker publishes JSON messages to the configured AMQP exchange.
type Broker interface {
	PublishJSON(ctx context.Context, routingKey string, v any) error
}

// Backends are the external collaborators built by the caller.
type Backends struct {
	// Token moves payments. Nil selects a fresh in-memory ledger.
	Token token.Token
	// Signer is the on-chain account of Token, if any. It holds escrowed
	// funds unless CONSUMER_ADDRESS is set.
	Signer common.Address
	// Broker is required by ORACLE_DISPATCHER=amqp and AMQP_PUBLISH_EVENTS.
	Broker Broker
}

// Server is the HTTP server
type Server struct {
	cfg      *config.Config
	store    storage.Store
	logger   *slog.Logger
	router   *chi.Mux
	consumer common.Address

	// Services typed via transport interfaces
	adminSvc    admintransport.Service
	requestsSvc requeststransport.Service
	gatewaySvc  interface {
		requeststransport.Gateway
		oracletransport.Service
	}
	eventLog *events.Log
	claimer  oracletransport.Claimer
	ledger   *token.Ledger
	admin    escrow.TokenSource
}

// New wires the domain services, seeds the admin settings on first start
// and builds the router.
func New(ctx context.Context, cfg *config.Config, store storage.Store, logger *slog.Logger, b Backends) (*Server, error) {
	metrics.Init(cfg.Metrics.Enabled, cfg.Metrics.ServiceName)

	s := &Server{
		cfg:    cfg,
		store:  store,
		logger: logger,
		router: chi.NewRouter(),
	}

	consumer, err := resolveConsumer(cfg, b.Signer)
	if err != nil {
		return nil, err
	}
	if consumer == DevConsumer {
		logger.Warn("no consumer address configured, using development address", "consumer", consumer.Hex())
	}
	s.consumer = consumer

	adminImpl := admindomain.NewService(store)
	adminSvc := admindomain.LoggingMiddleware(logger)(adminImpl)
	if err := seedSettings(ctx, cfg, adminSvc, consumer, logger); err != nil {
		return nil, err
	}
	s.admin = adminSvc

	tok := b.Token
	if tok == nil {
		s.ledger = token.NewLedger()
		tok = s.ledger
	}
	payments := escrow.New(tok, adminSvc, consumer)

	publisher, err := newPublisher(cfg, store, b.Broker, logger)
	if err != nil {
		return nil, err
	}

	registryImpl := requestsdomain.NewRegistry(store, payments, publisher,
		requestsdomain.WithExpirationWindow(cfg.Requests.ExpirationWindow))
	registrySvc := requestsdomain.LoggingMiddleware(logger)(registryImpl)
	s.requestsSvc = registrySvc

	var dispatcher oracledomain.Dispatcher
	switch cfg.Oracle.Dispatcher {
	case "amqp":
		if b.Broker == nil {
			return nil, errors.New("ORACLE_DISPATCHER=amqp requires an AMQP broker")
		}
		dispatcher = dispatch.NewAMQPDispatcher(b.Broker, cfg.AMQP.DispatchRoutingKey)
	default:
		operator := dispatch.NewLocalOperator(logger)
		dispatcher = operator
		s.claimer = operator
	}

	gatewayImpl := oracledomain.NewGateway(adminSvc, registrySvc, store, dispatcher, consumer)
	gatewaySvc := oracledomain.LoggingMiddleware(logger)(gatewayImpl)
	s.gatewaySvc = gatewaySvc

	// Job id updates go through the gateway, the rest straight to the admin service.
	s.adminSvc = &adminAPI{Service: adminSvc, jobIDs: gatewaySvc}
	s.eventLog = events.NewLog(store)

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// MetricsHandler returns the metrics HTTP handler for separate metrics server
func (s *Server) MetricsHandler() http.Handler {
	return metrics.Handler()
}

// Consumer returns the address holding escrowed payments.
func (s *Server) Consumer() common.Address {
	return s.consumer
}

func (s *Server) setupMiddleware() {
	// Order matters! Security middleware runs first to block malicious requests early.

	if s.cfg.Server.TrustProxy {
		s.router.Use(middleware.RealIP)
	}
	s.router.Use(security.FilterMiddleware(s.cfg.Security.FilterEnabled))
	s.router.Use(security.MaxBodySizeMiddleware(s.cfg.Security.MaxBodySizeKB))

	// Anonymous traffic is limited per IP here, authenticated writes again
	// per caller in requireCaller.
	s.router.Use(ratelimit.Middleware(s.rateLimitConfig(ratelimit.ScopeIP)))

	s.router.Use(middleware.RequestID)
	s.router.Use(logging.Middleware(s.logger))
	s.router.Use(metrics.Middleware)
	s.router.Use(middleware.Recoverer)
	if s.cfg.Server.RequestTimeout > 0 {
		s.router.Use(middleware.Timeout(time.Duration(s.cfg.Server.RequestTimeout) * time.Second))
	}
	s.router.Use(cors)
}

// rateLimitConfig builds the limiter for scope. Caller and oracle buckets use
// the caller limits; the outer per-IP limiter uses the global ones.
func (s *Server) rateLimitConfig(scope string) ratelimit.Config {
	rl := s.cfg.RateLimit
	cfg := ratelimit.Config{
		Enabled:        rl.Enabled,
		RequestsPerMin: rl.RequestsPerMin,
		BurstSize:      rl.BurstSize,
		CleanupMinutes: rl.CleanupMinutes,
		Scope:          scope,
		WriteError:     writeError,
	}
	if scope != ratelimit.ScopeIP {
		cfg.RequestsPerMin = rl.CallerRequestsPerMin
		cfg.BurstSize = rl.CallerBurstSize
	}
	return cfg
}

func (s *Server) setupRoutes() {
	// Health checks
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleReady)

	requestsHandler := requeststransport.NewHandler(s.requestsSvc, s.gatewaySvc)
	adminHandler := admintransport.NewHandler(s.adminSvc)
	oracleHandler := oracletransport.NewHandler(s.gatewaySvc, s.claimer)
	eventsHandler := eventstransport.NewHandler(s.eventLog)

	callerLimit := ratelimit.Middleware(s.rateLimitConfig(ratelimit.ScopeCaller))
	oracleLimit := ratelimit.Middleware(s.rateLimitConfig(ratelimit.ScopeOracle))
	requireCaller := func(r chi.Router) {
		r.Use(security.RequireJSON)
		if s.cfg.Auth.Type == "api-key" {
			r.Use(auth.Middleware(s.store, writeError))
		} else {
			r.Use(auth.HeaderMiddleware(writeError))
		}
		r.Use(callerLimit)
	}

	verifier := &hmacauth.Verifier{
		Secret:   s.cfg.Oracle.CallbackSecret,
		Insecure: s.cfg.Oracle.CallbackInsecure,
		MaxSkew:  s.cfg.Oracle.CallbackMaxSkew,
	}
	switch {
	case verifier.Secret != "":
	case verifier.Insecure:
		s.logger.Warn("ORACLE_CALLBACK_INSECURE is set, oracle callbacks are not authenticated")
	default:
		s.logger.Warn("ORACLE_CALLBACK_SECRET is empty, oracle callbacks will be rejected")
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			requireCaller(r)
			r.Get("/whoami", s.handleWhoAmI)
		})

		r.Route("/statuses", requestsHandler.RegisterStatusRoutes)
		r.Route("/requesters", requestsHandler.RegisterRequesterRoutes)

		r.Route("/requests", func(r chi.Router) {
			requestsHandler.RegisterReadRoutes(r)
			r.Group(func(r chi.Router) {
				requireCaller(r)
				requestsHandler.RegisterWriteRoutes(r)
			})
		})

		r.Route("/config", func(r chi.Router) {
			adminHandler.RegisterReadRoutes(r)
			r.Group(func(r chi.Router) {
				requireCaller(r)
				adminHandler.RegisterWriteRoutes(r)
			})
		})

		r.Route("/events", eventsHandler.RegisterRoutes)

		r.Route("/oracle", func(r chi.Router) {
			oracleHandler.RegisterReadRoutes(r)
			r.Group(func(r chi.Router) {
				r.Use(security.RequireJSON)
				r.Use(verifier.Middleware(writeError))
				r.Use(oracleLimit)
				oracleHandler.RegisterOracleRoutes(r)
			})
		})

		if s.ledger != nil {
			ledgerHandler := tokentransport.NewHandler(s.ledger, s.admin, s.consumer)
			r.Route("/ledger", func(r chi.Router) {
				ledgerHandler.RegisterReadRoutes(r)
				r.Group(func(r chi.Router) {
					requireCaller(r)
					ledgerHandler.RegisterWriteRoutes(r)
				})
			})
		}
	})

	if s.cfg.Metrics.Enabled {
		s.router.Handle("/metrics", metrics.Handler())
	}
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Error("readiness check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "NOT_READY", "Storage unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleWhoAmI reports the address the credentials act as.
func (s *Server) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFromContext(r.Context())
	resp := map[string]string{"address": caller.Hex()}
	if key := auth.GetAPIKeyFromContext(r.Context()); key != nil {
		resp["keyName"] = key.Name
	}
	writeJSON(w, http.StatusOK, resp)
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

// adminAPI routes job id updates through the oracle gateway.
type adminAPI struct {
	admintransport.Service
	jobIDs interface {
		SetJobID(ctx context.Context, caller common.Address, jobID string) error
	}
}

func (a *adminAPI) SetJobID(ctx context.Context, caller common.Address, jobID string) error {
	return a.jobIDs.SetJobID(ctx, caller, jobID)
}

func resolveConsumer(cfg *config.Config, signer common.Address) (common.Address, error) {
	if cfg.Chain.ConsumerAddress != "" {
		addr, err := validation.ParseNonZeroAddress(cfg.Chain.ConsumerAddress)
		if err != nil {
			return common.Address{}, fmt.Errorf("CONSUMER_ADDRESS: %w", err)
		}
		return addr, nil
	}
	if signer != (common.Address{}) {
		return signer, nil
	}
	return DevConsumer, nil
}

type seeder interface {
	Seed(ctx context.Context, initial admindomain.Settings) (bool, error)
}

// seedSettings stores the resolved network preset unless settings exist.
// The owner defaults to the consumer address.
func seedSettings(ctx context.Context, cfg *config.Config, admin seeder, consumer common.Address, logger *slog.Logger) error {
	network, err := cfg.ResolveNetwork()
	if err != nil {
		return err
	}

	initial := admindomain.Settings{Owner: consumer, SignUpURL: network.SignUpURL}
	if cfg.Oracle.Owner != "" {
		if initial.Owner, err = validation.ParseNonZeroAddress(cfg.Oracle.Owner); err != nil {
			return fmt.Errorf("OWNER_ADDRESS: %w", err)
		}
	}
	if initial.Oracle, err = validation.ParseAddress(network.Oracle); err != nil {
		return fmt.Errorf("oracle address of network %s: %w", network.Name, err)
	}
	if initial.Link, err = validation.ParseAddress(network.Link); err != nil {
		return fmt.Errorf("link address of network %s: %w", network.Name, err)
	}
	if initial.Payment, err = validation.ParseAmount(network.Payment); err != nil {
		return fmt.Errorf("payment of network %s: %w", network.Name, err)
	}
	if initial.JobID, err = ident.NewJobID(network.JobID); err != nil {
		return fmt.Errorf("job id of network %s: %w", network.Name, err)
	}

	created, err := admin.Seed(ctx, initial)
	if err != nil {
		return fmt.Errorf("seeding settings: %w", err)
	}
	if created {
		logger.Info("seeded settings from network preset",
			"network", network.Name,
			"owner", initial.Owner.Hex(),
			"oracle", initial.Oracle.Hex(),
			"payment", initial.Payment.String(),
		)
	}
	return nil
}

func newPublisher(cfg *config.Config, store storage.Store, broker Broker, logger *slog.Logger) (events.Publisher, error) {
	sinks := []events.Sink{
		{Name: "log", Publisher: events.NewLogPublisher(logger)},
		{Name: "store", Publisher: events.NewStorePublisher(store)},
	}
	if cfg.AMQP.PublishEvents {
		if broker == nil {
			return nil, errors.New("AMQP_PUBLISH_EVENTS requires an AMQP broker")
		}
		sinks = append(sinks, events.Sink{Name: "amqp", Publisher: events.NewAMQPPublisher(broker, cfg.AMQP.EventRoutingPrefix)})
	}
	return events.NewMulti(logger, sinks...), nil
}
