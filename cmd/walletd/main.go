// cmd/walletd/main.go
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keycortex/wallet/internal/authadapter"
	"github.com/keycortex/wallet/internal/authn"
	"github.com/keycortex/wallet/internal/binding"
	"github.com/keycortex/wallet/internal/challenge"
	"github.com/keycortex/wallet/internal/chain"
	"github.com/keycortex/wallet/internal/config"
	"github.com/keycortex/wallet/internal/keystore"
	"github.com/keycortex/wallet/internal/ledger"
	"github.com/keycortex/wallet/internal/server"
	"github.com/keycortex/wallet/internal/storage"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}

	secondary, err := storage.OpenEmbedded(cfg.KeystorePath)
	if err != nil {
		logger.Error("open embedded store failed", "error", err)
		os.Exit(1)
	}
	defer secondary.Close()

	var store storage.Store = secondary
	if cfg.DatabaseDSN != "" {
		primary, err := storage.NewPostgres(cfg.DatabaseDSN)
		if err != nil {
			logger.Warn("postgres unavailable at startup; continuing on embedded store only", "error", err)
			store = storage.NewDual(nil, secondary)
		} else {
			defer primary.Close()
			result := storage.MigratePostgres(context.Background(), primary.DB(), cfg.MigrationDir)
			if result.LastError != "" {
				logger.Warn("postgres migration incomplete", "error", result.LastError, "applied", result.Applied)
			} else {
				logger.Info("postgres migrations applied", "applied", result.Applied)
			}
			store = storage.NewDual(primary, secondary)
		}
	}

	ks := keystore.New(store, cfg.EncryptionKey, cfg.KDFRounds, cfg.Chain)
	chainAdapter := chain.NewFlowcortexClient("")
	ld := ledger.New(store, ks, chainAdapter, cfg.Chain)
	challenges := challenge.New(store)
	authAdapter := authadapter.New(challenges, ks)
	bindings := binding.New(store)

	jwks := authn.NewJWKSCache(cfg.JWKSURL, cfg.JWKSFile, cfg.JWKSInline)
	if cfg.JWKSURL != "" || cfg.JWKSFile != "" || cfg.JWKSInline != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := jwks.Refresh(ctx); err != nil {
			logger.Warn("initial JWKS load failed; falling back to HMAC until a refresh succeeds", "error", err)
		}
		cancel()
		go runJWKSRefreshLoop(jwks, cfg.JWKSInterval, logger)
	}
	validator := authn.NewValidator(jwks, cfg.HMACSecret, cfg.ExpectedIss, cfg.ExpectedAud)

	handler := server.New(server.Deps{
		Keystore:    ks,
		Ledger:      ld,
		Challenges:  authAdapter,
		Bindings:    bindings,
		Validator:   validator,
		JWKS:        jwks,
		Chain:       chainAdapter,
		Store:       store,
		Logger:      logger,
		ChainID:     cfg.Chain,
		CallbackURL: cfg.CallbackURL,
		Version:     "dev",
	})

	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("walletd starting", "addr", srv.Addr, "chain", cfg.Chain, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	} else {
		logger.Info("shutdown complete")
	}
}

// runJWKSRefreshLoop periodically refreshes the JWKS cache until the
// process exits. Failures are logged and never fatal: the cache keeps
// serving its last good snapshot.
func runJWKSRefreshLoop(jwks *authn.JWKSCache, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := jwks.Refresh(ctx); err != nil {
			logger.Warn("JWKS refresh failed", "error", err)
		}
		cancel()
	}
}
