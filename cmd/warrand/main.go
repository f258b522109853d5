package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"warranchain/go-backend/internal/config"
	"warranchain/go-backend/internal/gateway"
	"warranchain/go-backend/internal/gateway/saltstore"
	"warranchain/go-backend/internal/ledger"
	"warranchain/go-backend/internal/platform/privacylog"
	"warranchain/go-backend/internal/sponsor"
	"warranchain/go-backend/internal/zklogin/prover"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	configPath := flag.String("config", "", "Path to warrand.yaml (optional)")
	flag.Parse()
	if *showVersion {
		fmt.Printf("warrand version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	log := slog.New(privacylog.WrapHandler(slog.NewTextHandler(os.Stderr, nil)))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadFromPath(*configPath)
	if *addr != "" {
		cfg.Gateway.Addr = *addr
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error("warrand failed", "err", err)
		os.Exit(1)
	}
	log.Info("warrand stopped")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	var client ledger.Client
	if cfg.Ledger.UseFixture {
		log.Warn("fixture ledger selected; transactions will not leave this process")
		client = ledger.NewFixtureClient()
	} else {
		client = ledger.NewRPCClient(cfg.Ledger.RPCURL)
	}

	var signer *sponsor.Signer
	if cfg.Sponsor.Mnemonic != "" {
		var err error
		signer, err = sponsor.FromMnemonic(cfg.Sponsor.Mnemonic)
		if err != nil {
			return fmt.Errorf("sponsor key: %w", err)
		}
		log.Info("sponsor account ready", "address", signer.Address())
	} else {
		log.Warn("no sponsor mnemonic configured; sponsored endpoints will fail")
	}
	gasPrice := cfg.Sponsor.GasPrice
	priceCtx, cancelPrice := context.WithTimeout(ctx, 10*time.Second)
	if current, err := client.ReferenceGasPrice(priceCtx); err != nil {
		log.Warn("reference gas price unavailable, using configured value", "err", err, "configured", gasPrice)
	} else {
		gasPrice = current
		log.Info("reference gas price resolved", "price", gasPrice)
	}
	cancelPrice()
	gas := sponsor.NewGateway(signer, client, gasPrice, cfg.Sponsor.GasBudget, log)

	salts, err := saltstore.Open(cfg.Salts.Path, cfg.Salts.Secret)
	if err != nil {
		return fmt.Errorf("salt store: %w", err)
	}

	var verifier gateway.TokenVerifier
	if cfg.OAuth.SkipVerification && cfg.Ledger.UseFixture {
		log.Warn("token signature verification disabled")
		verifier = gateway.UnverifiedTokens{}
	} else {
		verifier = gateway.NewJWKSVerifier(cfg.OAuth.JWKSURL, cfg.OAuth.Issuer, cfg.OAuth.Audience)
	}

	proofClient := prover.NewClient(cfg.Prover.URL,
		prover.WithHTTPClient(&http.Client{Timeout: cfg.Prover.Timeout}),
		prover.WithRetryPolicy(prover.RetryPolicy{Attempts: cfg.Prover.Attempts}),
	)

	srv := gateway.New(cfg.Gateway, client, gas, salts, verifier, cfg.Contract.PackageID, log,
		gateway.WithProver(proofClient))
	httpSrv := &http.Server{
		Addr:              cfg.Gateway.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("warrand listening", "addr", cfg.Gateway.Addr, "network", cfg.Ledger.Network)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
