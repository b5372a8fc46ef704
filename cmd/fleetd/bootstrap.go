package main

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/marketfleet/supervisor/internal/config"
	"github.com/marketfleet/supervisor/internal/logging"
	"github.com/marketfleet/supervisor/internal/marketapi"
	"github.com/marketfleet/supervisor/internal/transport"
)

const outDir = "out"

// bootstrap wires the pieces every subcommand needs: config, the
// operator's on-chain identity, logging, and the MarketAPI adapter
// scoped (via the derived address as consumerID) to this operator's own
// orders and deals.
type bootstrap struct {
	cfgMgr    *config.Manager
	api       marketapi.MarketAPI
	blacklist *marketapi.BlacklistAPI
	orderOps  *marketapi.OrderOps
	log       zerolog.Logger
}

func newBootstrap() (*bootstrap, error) {
	cfgMgr, err := config.NewManager(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	base := cfgMgr.Current().Base
	identity, err := config.LoadIdentity(base.Ethereum.KeyPath, base.Ethereum.Password)
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}

	log, err := logging.New(logging.Options{
		Dir:   filepath.Join(outDir, "logs"),
		Level: "info",
		RunID: uuid.NewString(),
	})
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	tr := transport.NewHTTPTransport(base.NodeAddress, identity.Address.Hex())
	api := marketapi.NewClient(tr)
	blacklist := marketapi.NewBlacklistAPI(tr)
	orderOps := marketapi.NewOrderOps(tr)

	return &bootstrap{cfgMgr: cfgMgr, api: api, blacklist: blacklist, orderOps: orderOps, log: log}, nil
}
