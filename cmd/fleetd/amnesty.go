package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"
)

func newAmnestyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "amnesty",
		Short: "Clear every worker address currently blacklisted by this operator",
		Long: "Lists every blacklisted worker address and removes each one concurrently, " +
			"the operator escape hatch the daily state machine never reaches on its own.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAmnesty()
		},
	}
}

func runAmnesty() error {
	b, err := newBootstrap()
	if err != nil {
		return err
	}

	ctx := context.Background()
	addresses, ok := b.blacklist.List(ctx)
	if !ok {
		return fmt.Errorf("failed to fetch blacklist")
	}
	if len(addresses) == 0 {
		b.log.Info().Msg("blacklist is empty")
		return nil
	}

	var wg sync.WaitGroup
	for _, addr := range addresses {
		wg.Add(1)
		go func(address string) {
			defer wg.Done()
			if b.blacklist.Remove(ctx, address) {
				b.log.Info().Str("address", address).Msg("removed from blacklist")
			} else {
				b.log.Error().Str("address", address).Msg("failed to remove from blacklist")
			}
		}(addr)
	}
	wg.Wait()
	return nil
}
