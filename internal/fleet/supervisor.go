package fleet

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/marketfleet/supervisor/internal/clock"
	"github.com/marketfleet/supervisor/internal/config"
	"github.com/marketfleet/supervisor/internal/marketapi"
	"github.com/marketfleet/supervisor/internal/worknode"
)

const (
	reconcileListLimit = 1000
	reloadTick         = 60 * time.Second
	printTick          = 60 * time.Second
)

// Supervisor owns the fleet-wide lifecycle of §4.5: startup reconciliation,
// one concurrent worker per node, a periodic snapshot printer, and hot
// config reload.
type Supervisor struct {
	cfgMgr *config.Manager
	api    marketapi.MarketAPI
	clk    clock.Clock
	log    zerolog.Logger
	outDir string

	fleet *Fleet
	wg    sync.WaitGroup
}

// NewSupervisor constructs a Supervisor over an already-loaded config
// manager and MarketAPI adapter. outDir is the root under which per-node
// descriptors and logs are written (§5 File I/O).
func NewSupervisor(cfgMgr *config.Manager, api marketapi.MarketAPI, clk clock.Clock, log zerolog.Logger, outDir string) *Supervisor {
	return &Supervisor{
		cfgMgr: cfgMgr,
		api:    api,
		clk:    clk,
		log:    log,
		outDir: outDir,
		fleet:  NewFleet(),
	}
}

// Run reconciles against the marketplace, spawns a worker per node, and
// blocks until ctx is cancelled or every worker finishes on its own
// (WORK_COMPLETED). On return, every spawned worker has already stopped.
func (s *Supervisor) Run(ctx context.Context) error {
	initial, err := s.reconcile(ctx)
	if err != nil {
		return err
	}
	for tag, state := range initial {
		s.spawn(ctx, tag, state)
	}

	allDone := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(allDone)
	}()

	reload := time.NewTicker(reloadTick)
	print := time.NewTicker(printTick)
	defer reload.Stop()
	defer print.Stop()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return nil
		case <-allDone:
			return nil
		case <-print.C:
			s.printSnapshot()
		case <-reload.C:
			s.applyReload(ctx)
		}
	}
}

func (s *Supervisor) printSnapshot() {
	snaps := s.fleet.Snapshots()
	rows := make([]tableRow, 0, len(snaps))
	for _, sn := range snaps {
		rows = append(rows, tableRow{
			Tag:        sn.Tag,
			OrderID:    sn.OrderID,
			Price:      sn.Price,
			DealID:     sn.DealID,
			TaskID:     sn.TaskID,
			TaskUptime: sn.TaskUptime,
			Status:     string(sn.Status),
		})
	}
	printSnapshot(rows)
}

// applyReload implements §4.5's config reload: nodes absent from the new
// config are stopped and dropped; new tags get fresh workers; already
// running workers pick up config changes on their own next CREATE_ORDER.
func (s *Supervisor) applyReload(ctx context.Context) {
	_, taskErrors := s.cfgMgr.Reload()
	for _, e := range taskErrors {
		s.log.Warn().Err(e).Msg("skipping task file during config reload")
	}

	current := s.cfgMgr.Current()
	wantTags := make(map[string]config.NodeConfig)
	for _, n := range current.Nodes() {
		wantTags[n.Tag] = n
	}

	for _, tag := range s.fleet.Tags() {
		if _, ok := wantTags[tag]; !ok {
			s.stop(tag)
			s.log.Info().Str("tag", tag).Msg("node removed from config, stopping worker")
		}
	}
	for tag, cfg := range wantTags {
		if !s.fleet.Has(tag) {
			s.spawn(ctx, tag, worknode.NewFreshState(cfg))
			s.log.Info().Str("tag", tag).Msg("node added to config, starting worker")
		}
	}
}

func (s *Supervisor) spawn(ctx context.Context, tag string, state worknode.WorkNodeState) {
	node := worknode.New(state, s.api, s.cfgMgr, s.clk, s.log, s.outDir)
	stop := make(chan struct{})
	done := make(chan struct{})

	s.fleet.add(tag, &member{node: node, stop: stop, done: done})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)
		defer s.fleet.remove(tag)
		node.Watch(ctx, stop)
	}()
}

func (s *Supervisor) stop(tag string) {
	m, ok := s.fleet.get(tag)
	if !ok {
		return
	}
	close(m.stop)
}

// reconcile implements §4.5's startup reconciliation: recover in-flight
// state from the marketplace's own view of open deals/orders before
// falling back to a fresh START for everything else.
func (s *Supervisor) reconcile(ctx context.Context) (map[string]worknode.WorkNodeState, error) {
	current := s.cfgMgr.Current()
	byTag := make(map[string]config.NodeConfig)
	for _, n := range current.Nodes() {
		byTag[n.Tag] = n
	}

	states := make(map[string]worknode.WorkNodeState)
	adoptedByDeal := make(map[string]bool)

	for _, deal := range s.api.DealList(ctx, reconcileListLimit) {
		dealStatus, ok := s.api.DealStatus(ctx, deal.ID)
		if !ok || dealStatus.Closed() {
			continue
		}
		orderStatus, ok := s.api.OrderStatus(ctx, dealStatus.BidID)
		if !ok {
			continue
		}
		cfg, known := byTag[orderStatus.Tag]
		if !known {
			continue
		}
		if _, dup := states[cfg.Tag]; dup {
			s.log.Warn().Str("tag", cfg.Tag).Str("deal_id", deal.ID).
				Msg("duplicate deal for tag during reconciliation, keeping the later one")
		}

		st := worknode.NewFreshState(cfg)
		st.OrderID = dealStatus.BidID
		st.DealID = deal.ID
		st.Price = marketapi.WireToHumanUSD(dealStatus.Price).StringFixed(4)
		switch {
		case len(dealStatus.Running) > 0:
			st.Status = worknode.StateTaskRunning
			st.TaskID = dealStatus.Running[0]
		case dealStatus.WorkerOffline:
			st.Status = worknode.StateTaskFailed
		default:
			st.Status = worknode.StateDealOpened
		}

		states[cfg.Tag] = st
		adoptedByDeal[cfg.Tag] = true
	}

	for _, order := range s.api.OrderList(ctx, reconcileListLimit) {
		cfg, known := byTag[order.Tag]
		if !known || adoptedByDeal[cfg.Tag] {
			continue
		}
		if _, dup := states[cfg.Tag]; dup {
			s.log.Warn().Str("tag", cfg.Tag).Str("order_id", order.ID).
				Msg("duplicate order for tag during reconciliation, keeping the later one")
		}
		st := worknode.NewFreshState(cfg)
		st.OrderID = order.ID
		st.Price = marketapi.WireToHumanUSD(order.Price).StringFixed(4)
		st.Status = worknode.StateAwaitingDeal
		states[cfg.Tag] = st
	}

	for tag, cfg := range byTag {
		if _, seen := states[tag]; !seen {
			states[tag] = worknode.NewFreshState(cfg)
		}
	}

	return states, nil
}
