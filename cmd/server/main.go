// Trustless Work - escrow lifecycle service
package main

import (
	"context"
	"os"

	"github.com/Tico4Chain-Coders/DAPP-Trustless-Work/internal/config"
	"github.com/Tico4Chain-Coders/DAPP-Trustless-Work/internal/logging"
	"github.com/Tico4Chain-Coders/DAPP-Trustless-Work/internal/server"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	logger := logging.New("info", "text")

	logger.Info("starting trustless-work",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"env", cfg.Env,
		"chain_id", cfg.ChainID,
		"ledger", cfg.LedgerAPIURL,
	)

	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
