package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cityfix-be/config"
	"cityfix-be/controllers"
	"cityfix-be/gateway"
	"cityfix-be/identity"
	"cityfix-be/middlewares"
	"cityfix-be/repository"
	"cityfix-be/repository/memory"
	"cityfix-be/routes"
	"cityfix-be/services"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var inMemory bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the CityFix HTTP API.

Examples:
  cityfix-be serve
  AUTH_MODE=hmac JWT_SECRET=dev cityfix-be serve --memory`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := config.NewLogger(cfg)
			if err := cfg.Validate(inMemory); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			a, err := newApp(cmd.Context(), cfg, logger, inMemory)
			if err != nil {
				return err
			}
			return a.run(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&inMemory, "memory", false, "keep all data in process memory instead of MongoDB")
	return cmd
}

type app struct {
	logger     *slog.Logger
	httpServer *http.Server
	closers    []func(context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, inMemory bool) (*app, error) {
	a := &app{logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.close(context.Background())
		}
	}()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	store, err := a.openStore(ctx, cfg, inMemory)
	if err != nil {
		return nil, err
	}

	verifier, provisioner, err := newIdentity(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var gw gateway.PaymentGateway
	if cfg.StripeSecretKey != "" {
		gw = gateway.NewStripeGateway(cfg.StripeSecretKey)
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set, checkout sessions are simulated and paid immediately")
		gw = gateway.NewLocalGateway(true)
	}

	var limiter gin.HandlerFunc
	if cfg.IssueDailyLimit > 0 {
		client, err := config.ConnectRedis(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		limiter = middlewares.IssueRateLimiter(client, cfg.IssueLimitPrefix, cfg.IssueDailyLimit)
	}

	issueSvc := services.NewIssueService(store.Issues, store.Users, cfg.FreeIssueQuota)
	userSvc := services.NewUserService(store.Users, provisioner)
	paymentSvc := services.NewPaymentService(store, gw, services.PaymentConfig{
		Currency:           cfg.PaymentCurrency,
		SubscriptionAmount: cfg.SubscriptionAmount,
		BoostAmount:        cfg.BoostAmount,
		SiteDomain:         cfg.SiteDomain,
	})

	router := routes.NewRouter(routes.Dependencies{
		Issues:         controllers.NewIssueController(issueSvc, cfg.RequestTimeout),
		Users:          controllers.NewUserController(userSvc, cfg.RequestTimeout),
		Payments:       controllers.NewPaymentController(paymentSvc, cfg.RequestTimeout),
		Verifier:       verifier,
		Gate:           middlewares.NewGate(store.Users),
		IssueLimiter:   limiter,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	a.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	ok = true
	return a, nil
}

func (a *app) openStore(ctx context.Context, cfg *config.Config, inMemory bool) (*repository.Store, error) {
	if inMemory {
		a.logger.Warn("using in-memory store, data is lost on exit")
		return memory.NewStore(), nil
	}

	client, db, err := config.ConnectDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Disconnect)

	if err := repository.EnsureIndexes(ctx, db); err != nil {
		return nil, err
	}
	return mongoStore(db), nil
}

func mongoStore(db *mongo.Database) *repository.Store {
	return &repository.Store{
		Issues:   repository.NewIssueRepository(db),
		Users:    repository.NewUserRepository(db),
		Payments: repository.NewPaymentRepository(db),
	}
}

// newIdentity returns HS256 verification with local accounts in hmac mode, and
// otherwise Firebase ID token verification with revocation checks plus
// Firebase account provisioning.
func newIdentity(ctx context.Context, cfg *config.Config) (identity.TokenVerifier, identity.AccountProvisioner, error) {
	if cfg.AuthMode == config.AuthModeHMAC {
		return identity.NewHMACVerifier(cfg.JWTSecret), identity.NewLocalProvisioner(), nil
	}

	client, err := identity.NewFirebaseAuth(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentialsFile)
	if err != nil {
		return nil, nil, err
	}
	verifier, err := identity.NewOIDCVerifier(ctx,
		identity.FirebaseIssuer(cfg.FirebaseProjectID),
		cfg.FirebaseProjectID,
		identity.NewFirebaseRevocationChecker(client),
	)
	if err != nil {
		return nil, nil, err
	}
	return verifier, identity.NewFirebaseProvisioner(client), nil
}

func (a *app) run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Server is running", "addr", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
	case runErr = <-errCh:
		a.logger.Error("server failure", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("graceful shutdown failed", "error", err)
	}
	a.close(shutdownCtx)
	return runErr
}

func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Error("failed to release resource", "error", err)
		}
	}
	a.closers = nil
}
