// stealthd runs the stealth payment backend: the chain watcher, the
// settlement queue and the HTTP intake API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "stealthpay/docs"
	"stealthpay/internal/api"
	"stealthpay/internal/client"
	"stealthpay/internal/config"
	"stealthpay/internal/keystore"
	"stealthpay/internal/logger"
	"stealthpay/internal/resolver"
	"stealthpay/internal/settlement"
	"stealthpay/internal/store"
	"stealthpay/internal/watcher"
)

// @title        stealthpay API
// @version      1.0
// @description  Stealth payment settlement service
// @BasePath     /
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.Init(); err != nil {
		return err
	}
	cfg := config.Get()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	chain := cfg.ActiveChain()
	programID, err := solana.PublicKeyFromBase58(chain.StealthProgram)
	if err != nil {
		return fmt.Errorf("invalid stealth program id: %w", err)
	}
	usdcMint, err := solana.PublicKeyFromBase58(chain.USDCMint)
	if err != nil {
		return fmt.Errorf("invalid USDC mint: %w", err)
	}

	feePayer, err := loadFeePayer(cfg)
	if err != nil {
		return err
	}
	log.Info("fee payer loaded", zap.String("address", feePayer.PublicKey().String()))

	db, err := store.Open(cfg.DatabaseDSN)
	if err != nil {
		return err
	}

	rpcClient := client.New(chain.RPCURL, log)
	res := resolver.New(db, log)

	w := watcher.New(rpcClient, db, res, log, watcher.Options{
		Chain:          chain.ID,
		ProgramID:      programID,
		PollInterval:   cfg.PollInterval,
		SweepInterval:  cfg.SweepInterval,
		SignatureBatch: cfg.SignatureBatch,
		SweepBatch:     cfg.SweepBatch,
		ResolveWorkers: cfg.ResolveWorkers,
	})

	orch := settlement.NewOrchestrator(rpcClient, db, res, log, feePayer, chain.ID, programID, usdcMint)
	queue := settlement.NewQueue(orch, log, cfg.SettlementWorkers, cfg.SettlementDepth)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.SetupRouter(queue, log),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(ctx) })
	g.Go(func() error { return queue.Run(ctx) })
	g.Go(func() error {
		log.Info("http server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutdown complete")
	return nil
}

// loadFeePayer reads the settlement signer from the encrypted keystore,
// falling back to the plaintext environment key.
func loadFeePayer(cfg *config.Config) (solana.PrivateKey, error) {
	if cfg.FeePayerKeystorePath != "" {
		if err := config.PromptForPassword(); err != nil {
			return nil, err
		}
		password, err := config.GetKeystorePasswordBytes()
		if err != nil {
			return nil, err
		}
		defer clear(password)
		return keystore.Load(cfg.FeePayerKeystorePath, password)
	}
	if cfg.FeePayerKey != "" {
		key, err := solana.PrivateKeyFromBase58(cfg.FeePayerKey)
		if err != nil {
			return nil, fmt.Errorf("invalid FEE_PAYER_KEY: %w", err)
		}
		return key, nil
	}
	return nil, errors.New("no fee payer configured: set FEE_PAYER_KEYSTORE_PATH or FEE_PAYER_KEY")
}
