package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"itdesk.org/internal/admin"
	"itdesk.org/internal/audit"
	"itdesk.org/internal/auth"
	"itdesk.org/internal/config"
	"itdesk.org/internal/httpapi"
	"itdesk.org/internal/inventory"
	"itdesk.org/internal/issues"
	"itdesk.org/internal/obs"
	"itdesk.org/internal/releases"
	"itdesk.org/internal/requests"
	"itdesk.org/internal/store/pg"
	"itdesk.org/internal/warehouse"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		obs.Logger().WithError(err).Error("itdesk-api exited")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:           "itdesk-api",
		Short:         "Serve the itdesk back-office API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, configFile)
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "optional config file (yaml, json or toml)")
	return cmd
}

func run(ctx context.Context, configFile string) error {
	cfg, err := config.Load(config.New(), configFile)
	if err != nil {
		return err
	}
	if err := obs.ConfigureLogger(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}
	log := obs.Logger()
	obs.Init()
	obs.InitBuildInfo(version, commit)

	shutdownTracing, err := obs.InitTracing(ctx, obs.TracingConfig{
		Enabled:  cfg.Tracing.Enabled,
		Endpoint: cfg.Tracing.Endpoint,
		Insecure: cfg.Tracing.Insecure,
	})
	if err != nil {
		return err
	}

	store, err := pg.Open(cfg.Database.DSN, pg.PoolConfig{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	issuer, err := auth.NewIssuer(cfg.Auth.AccessSecret, cfg.Auth.RefreshSecret,
		auth.WithIssuerName(cfg.Auth.Issuer),
		auth.WithAccessTTL(cfg.Auth.AccessTTL),
		auth.WithRefreshTTL(cfg.Auth.RefreshTTL),
	)
	if err != nil {
		return err
	}

	recorder := audit.NewRecorder(store, log)
	whStore := store.Warehouse()
	svc := httpapi.Services{
		Auth: auth.NewService(store, issuer,
			auth.WithAuditor(recorder),
			auth.WithLogger(log),
			auth.WithBcryptCost(cfg.Auth.BcryptCost),
			auth.WithDefaultRole(cfg.Auth.DefaultRole),
		),
		Admin: admin.NewService(store, recorder,
			admin.WithBcryptCost(cfg.Auth.BcryptCost),
			admin.WithMaxPageLimit(cfg.Paging.MaxLimit),
		),
		Inventory: inventory.NewService(store.Inventory(), recorder),
		Warehouse: warehouse.NewService(whStore, recorder),
		Requests:  requests.NewService(store.Requests(), recorder),
		Issues:    issues.NewService(store.Issues(), recorder),
		Releases:  releases.NewService(store.Releases(), recorder),
	}

	sweeper := warehouse.NewSweeper(whStore, log)
	if err := sweeper.Start(cfg.Warehouse.AlertSweep); err != nil {
		return fmt.Errorf("schedule stock alert sweep: %w", err)
	}

	proxies, err := httpapi.ParseTrustedProxies(cfg.HTTP.TrustedProxies)
	if err != nil {
		return err
	}

	probe := httpapi.ReadyProbe{DB: store}
	api := httpapi.New(svc,
		httpapi.WithReadyProbe(probe),
		httpapi.WithVersion(version),
		httpapi.WithLogger(log),
		httpapi.WithRateLimit(cfg.HTTP.RateBurst, cfg.HTTP.RatePerSec),
		httpapi.WithCORSOrigins(cfg.HTTP.CORSOrigins),
		httpapi.WithTrustedProxies(proxies),
		httpapi.WithPaging(cfg.Paging.DefaultLimit, cfg.Paging.MaxLimit),
	)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	grpcSrv := httpapi.NewGRPCServer(probe, log)

	errc := make(chan error, 2)
	go func() {
		log.WithField("addr", srv.Addr).WithField("version", version).Info("http_listen")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http listen: %w", err)
		}
	}()
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		go func() {
			log.WithField("addr", cfg.GRPCAddr).Info("grpc_listen")
			if err := grpcSrv.Serve(lis); err != nil {
				errc <- fmt.Errorf("grpc serve: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("shutting_down")
	case err = <-errc:
		log.WithError(err).Error("server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	grpcSrv.GracefulStop()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		log.WithError(serr).Warn("http shutdown")
	}
	sweeper.Stop(shutdownCtx)
	if serr := shutdownTracing(shutdownCtx); serr != nil {
		log.WithError(serr).Warn("tracing shutdown")
	}
	log.Info("stopped")
	return err
}
