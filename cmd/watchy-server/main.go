// Command watchy-server is the process entry point: it loads
// configuration, wires the Chain Registry, Signer, Job Store, rate
// limiter, Audit Engine, and HTTP facade together, then serves until
// signaled to shut down gracefully.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/builders-garden/watchy/internal/chainregistry"
	"github.com/builders-garden/watchy/internal/checks/onchain"
	"github.com/builders-garden/watchy/internal/config"
	"github.com/builders-garden/watchy/internal/engine"
	"github.com/builders-garden/watchy/internal/httpapi"
	"github.com/builders-garden/watchy/internal/jobstore"
	"github.com/builders-garden/watchy/internal/logging"
	"github.com/builders-garden/watchy/internal/obsmetrics"
	"github.com/builders-garden/watchy/internal/ratelimit"
	"github.com/builders-garden/watchy/internal/scoring"
	"github.com/builders-garden/watchy/internal/signer"
	"github.com/builders-garden/watchy/internal/submission"
)

const serviceName = "watchy"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logging.New(serviceName, cfg.Logging.Level, cfg.Logging.Format)
	log.Info("starting watchy-server")

	chains := chainregistry.New()
	metrics := obsmetrics.New(serviceName)

	sig := buildSigner(cfg, log)

	store, limiter := buildStorage(cfg, log)

	uploader := submission.Uploader(submission.NullUploader{})
	if cfg.Submission.StorageGatewayURL != "" {
		uploader = submission.NewHTTPUploader(cfg.Submission.StorageGatewayURL, cfg.Submission.StorageAPIToken)
	}

	dialOnchain := func(chainCfg chainregistry.ChainConfig) (*onchain.Verifier, *ethclient.Client, error) {
		client, err := ethclient.DialContext(context.Background(), chainCfg.RPCURL)
		if err != nil {
			return nil, nil, err
		}
		return onchain.New(client, chainCfg.RegistryAddress), client, nil
	}

	auditEngine := engine.New(engine.Dependencies{
		Chains:         chains,
		Store:          store,
		Limiter:        limiter,
		GlobalPoolSize: 32,
		ProbePoolSize:  8,
		Signer:         sig,
		Uploader:       uploader,
		ScoringConfig:  scoring.Config{IncludeSecurityInOverall: cfg.Scoring.IncludeSecurityInOverall},
		AuditorName:    serviceName,
		DialOnchain:    dialOnchain,
		WebhookSecret:  cfg.Webhook.Secret,
		Logger:         log,
		Metrics:        metrics,
	})

	signerAddress := ""
	if sig != nil {
		signerAddress = sig.Address().Hex()
	}

	server := httpapi.NewServer(httpapi.Config{
		Engine:         auditEngine,
		Logger:         log,
		Metrics:        metrics,
		APIKey:         cfg.Server.APIKey,
		Version:        "1.0.0",
		Chains:         chains,
		DefaultChainID: cfg.Chain.DefaultChainID,
		StorageBackend: cfg.StorageBackend(),
		WalletMode:     cfg.WalletMode(),
		SignerAddress:  signerAddress,
	})

	httpServer := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.WithFields(map[string]interface{}{
		"port":             cfg.Server.Port,
		"wallet_mode":      cfg.WalletMode(),
		"storage_backend":  cfg.StorageBackend(),
		"default_chain_id": cfg.Chain.DefaultChainID,
	}).Info("watchy-server listening")

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("http server stopped unexpectedly")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
}

func buildSigner(cfg *config.Config, log *logging.Logger) *signer.Signer {
	switch cfg.WalletMode() {
	case "private_key":
		s, err := signer.FromPrivateKey(cfg.Wallet.PrivateKey)
		if err != nil {
			log.WithError(err).Fatal("invalid PRIVATE_KEY")
		}
		return s
	case "mnemonic":
		s, err := signer.FromMnemonic(cfg.Wallet.Mnemonic, cfg.Wallet.DerivationIndex)
		if err != nil {
			log.WithError(err).Fatal("invalid MNEMONIC")
		}
		return s
	default:
		log.Warn("no signer configured: uploads and on-chain reputation writes are disabled")
		return nil
	}
}

type rateAllower interface {
	Allow(chainID uint64, agentID string) (bool, time.Duration)
}

type redisLimiterAdapter struct {
	limiter *ratelimit.RedisLimiter
}

func (a redisLimiterAdapter) Allow(chainID uint64, agentID string) (bool, time.Duration) {
	allowed, retryAfter, err := a.limiter.Allow(context.Background(), chainID, agentID)
	if err != nil {
		return true, 0
	}
	return allowed, retryAfter
}

func buildStorage(cfg *config.Config, log *logging.Logger) (jobstore.Store, rateAllower) {
	if cfg.Store.RedisURL == "" {
		return jobstore.NewMemoryStore(), ratelimit.New(ratelimit.DefaultConfig())
	}
	redisStore, err := jobstore.NewRedisStore(cfg.Store.RedisURL)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to REDIS_URL")
	}
	return redisStore, redisLimiterAdapter{limiter: ratelimit.NewRedisLimiter(redisStore.Client(), ratelimit.DefaultConfig())}
}
