package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/marketfleet/supervisor/internal/config"
	"github.com/marketfleet/supervisor/internal/descriptor"
	"github.com/marketfleet/supervisor/internal/marketapi"
	"github.com/marketfleet/supervisor/internal/pricing"
)

func newRecreateOrdersCmd() *cobra.Command {
	var task string

	cmd := &cobra.Command{
		Use:   "recreate-orders",
		Short: "Cancel and recreate every open order for a task, forcing an immediate reprice",
		Long: "For every node of the named task with a currently open order, cancels it " +
			"and places a fresh one from the current config/price, instead of waiting for " +
			"the natural CREATE_ORDER cycle.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if task == "" {
				return fmt.Errorf("--task is required")
			}
			return runRecreateOrders(task)
		},
	}
	cmd.Flags().StringVar(&task, "task", "", "task tag whose open orders should be recreated")
	return cmd
}

func runRecreateOrders(task string) error {
	b, err := newBootstrap()
	if err != nil {
		return err
	}

	ctx := context.Background()
	nodesByTag := make(map[string]config.NodeConfig)
	for _, n := range b.cfgMgr.Current().Nodes() {
		if n.Task.Tag == task {
			nodesByTag[n.Tag] = n
		}
	}
	if len(nodesByTag) == 0 {
		return fmt.Errorf("no configured nodes for task %q", task)
	}

	var wg sync.WaitGroup
	for _, order := range b.api.OrderList(ctx, len(nodesByTag)) {
		cfg, known := nodesByTag[order.Tag]
		if !known {
			continue
		}
		wg.Add(1)
		go func(orderID string, cfg config.NodeConfig) {
			defer wg.Done()
			recreateOrder(ctx, b, orderID, cfg)
		}(order.ID, cfg)
	}
	wg.Wait()
	return nil
}

func recreateOrder(ctx context.Context, b *bootstrap, orderID string, cfg config.NodeConfig) {
	b.log.Info().Str("tag", cfg.Tag).Str("order_id", orderID).Msg("cancelling order")
	if !b.orderOps.Cancel(ctx, orderID) {
		b.log.Error().Str("tag", cfg.Tag).Str("order_id", orderID).Msg("failed to cancel order")
		return
	}

	predicted, ok := b.api.PredictBid(ctx, resourceSpecFrom(cfg))
	var predictedPtr *float64
	if ok {
		predictedPtr = &predicted
	}
	price, err := pricing.Compute(predictedPtr, decimal.NewFromFloat(cfg.Task.MaxPriceUSD), cfg.Task.PriceCoefficient)
	if err != nil {
		b.log.Error().Str("tag", cfg.Tag).Err(err).Msg("cannot price recreated order")
		return
	}

	bid := descriptor.BuildBid(cfg, price)
	if err := descriptor.PersistBid(outDir, bid); err != nil {
		b.log.Warn().Str("tag", cfg.Tag).Err(err).Msg("failed to persist recreated bid descriptor")
	}
	bidBytes, err := descriptor.MarshalBid(bid)
	if err != nil {
		b.log.Error().Str("tag", cfg.Tag).Err(err).Msg("failed to marshal recreated bid")
		return
	}

	newID, ok := b.api.OrderCreate(ctx, bidBytes)
	if !ok {
		b.log.Error().Str("tag", cfg.Tag).Msg("failed to create recreated order")
		return
	}
	b.log.Info().Str("tag", cfg.Tag).Str("order_id", newID).Msg("order recreated")
}

func resourceSpecFrom(cfg config.NodeConfig) marketapi.ResourceSpec {
	t := cfg.Task
	return marketapi.ResourceSpec{
		RAMSizeMiB:     t.RAMSizeMiB,
		StorageSizeGiB: t.StorageSizeGiB,
		CPUCores:       t.CPUCores,
		SysbenchSingle: t.SysbenchSingle,
		SysbenchMulti:  t.SysbenchMulti,
		GPUCount:       t.GPUCount,
		GPUMemMiB:      t.GPUMemMiB,
		EthHashrateMhs: t.EthHashrateMhs,
	}
}
