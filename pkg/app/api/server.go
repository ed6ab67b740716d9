// Package api implements the API server process: it wires the store, chain
// clients, signature authority and conversion service behind the HTTP
// surface.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apphttp "github.com/openbridge/converter-core/pkg/app/http"
	"github.com/openbridge/converter-core/pkg/chains/cardano"
	"github.com/openbridge/converter-core/pkg/chains/ethereum"
	"github.com/openbridge/converter-core/pkg/config"
	"github.com/openbridge/converter-core/pkg/conversion/service"
	"github.com/openbridge/converter-core/pkg/conversionstore"
	"github.com/openbridge/converter-core/pkg/evidence"
	"github.com/openbridge/converter-core/pkg/notify"
	"github.com/openbridge/converter-core/pkg/pgutil"
	"github.com/openbridge/converter-core/pkg/signer"
)

const defaultRequestTimeout = 60

// Server holds cfg to init the api server.
type Server struct {
	cfg *config.Config
}

// NewServer initializes new api server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("api server config is nil")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting converter API server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
	)

	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer db.Close()
	logger.Info("Connected to database",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Database),
	)

	ethClient, err := ethereum.NewClient(&cfg.Ethereum, logger)
	if err != nil {
		return fmt.Errorf("connect ethereum rpc: %w", err)
	}
	defer ethClient.Close()
	logger.Info("Connected to Ethereum", zap.String("rpc_url", cfg.Ethereum.RPCURL))

	cardanoClient := cardano.NewClient(&cfg.Cardano, logger)

	authority, err := signer.NewAuthority(cfg.Signer.AuthorityKey, cfg.Signer.ExpiryBlocks, ethClient, logger)
	if err != nil {
		return fmt.Errorf("load authority key: %w", err)
	}
	logger.Info("Signature authority ready", zap.String("address", authority.Address().Hex()))

	notifier, err := notify.New(ctx, &cfg.Notify, logger)
	if err != nil {
		return fmt.Errorf("setup notifier: %w", err)
	}

	store := conversionstore.NewStore(db)
	validator := evidence.NewValidator(store, ethClient, cardanoClient, logger)

	svc := service.NewService(
		store,
		authority,
		validator,
		service.StaticDepositAddress(cfg.Cardano.DepositAddress),
		notifier,
		cfg.Expiry.Hours,
		logger,
	)

	router := s.setupRouter(NewHandler(svc, notifier, logger))
	return apphttp.ServeAndWait(ctx, router, logger, &cfg.Server)
}

func (s *Server) setupRouter(handler *Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Second * defaultRequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	handler.Register(r)
	return r
}
