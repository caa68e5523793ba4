package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kitkatcodeskitty/LMS-sub001/internal/config"
	"github.com/kitkatcodeskitty/LMS-sub001/internal/handlers"
	"github.com/kitkatcodeskitty/LMS-sub001/internal/ledger"
	"github.com/kitkatcodeskitty/LMS-sub001/internal/logger"
	"github.com/kitkatcodeskitty/LMS-sub001/internal/middleware"
	"github.com/kitkatcodeskitty/LMS-sub001/internal/models"
	"github.com/kitkatcodeskitty/LMS-sub001/internal/repository"
	"github.com/kitkatcodeskitty/LMS-sub001/internal/service"
	"github.com/kitkatcodeskitty/LMS-sub001/internal/withdrawal"
)

const defaultSecretKey = "some-secret-key"

type Server struct {
	cfg        *config.Config
	repo       repository.Repository
	manager    *withdrawal.Manager
	httpServer *http.Server
	handlers   *handlers.Handler
	secretKey  string
}

func NewServer(cfg *config.Config) *Server {
	secretKey := cfg.JWTSecret
	if secretKey == "" {
		secretKey = defaultSecretKey
	}

	var repo repository.Repository
	if cfg.DatabaseURI == "" {
		logger.Warn("no database URI configured, using in-memory store")
		repo = repository.NewMemoryRepository(cfg.Policy)
	} else {
		repo = repository.NewPostgresRepository(cfg.Policy)
	}

	var gateway withdrawal.PayoutExecutor
	if cfg.PayoutGatewayAddress != "" {
		gateway = service.NewPayoutGateway(cfg.PayoutGatewayAddress)
	}

	ledgerReader := ledger.NewReader(repo, cfg.Policy.WithdrawableFraction)
	manager := withdrawal.NewManager(repo, gateway, cfg.Policy)
	h := handlers.NewHandler(repo, manager, ledgerReader, secretKey)

	return &Server{
		cfg:       cfg,
		repo:      repo,
		manager:   manager,
		handlers:  h,
		secretKey: secretKey,
	}
}

func (s *Server) Run() error {

	if err := s.repo.InitDB(s.cfg.DatabaseURI); err != nil {
		return err
	}

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	r.Route("/api", func(r chi.Router) {
		r.Post("/user/register", s.handlers.RegisterUser)
		r.Post("/user/login", s.handlers.LoginUser)

		r.Group(func(r chi.Router) {
			jwtConfig := &middleware.JWTConfig{
				SecretKey: s.secretKey,
				Repo:      s.repo,
			}
			r.Use(middleware.AuthMiddleware(jwtConfig))

			r.Get("/earnings", s.handlers.GetEarnings)

			r.Route("/withdrawals", func(r chi.Router) {
				r.Get("/available-balance", s.handlers.GetAvailableBalance)
				r.Post("/request", s.handlers.RequestWithdrawal)
				r.Get("/history", s.handlers.GetWithdrawalHistory)

				r.With(middleware.RequireRoles(models.RoleAdmin, models.RoleSubAdmin)).
					Patch("/{id}", s.handlers.TransitionWithdrawal)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleSubAdmin))

				r.Get("/admin/withdrawals", s.handlers.ListWithdrawals)
				r.Post("/purchases", s.handlers.RecordPurchase)
			})
		})
	})

	s.httpServer = &http.Server{
		Addr:    s.cfg.RunAddress,
		Handler: r,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return err
		}
	}

	if s.repo != nil {
		if err := s.repo.Close(); err != nil {
			return err
		}
	}

	return nil
}
