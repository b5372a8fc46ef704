package worknode

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/marketfleet/supervisor/internal/clock"
	"github.com/marketfleet/supervisor/internal/config"
	"github.com/marketfleet/supervisor/internal/descriptor"
	"github.com/marketfleet/supervisor/internal/marketapi"
	"github.com/marketfleet/supervisor/internal/pricing"
)

const tailLinesOnClose = 1_000_000

// sleep durations named from §4.4's transition table, kept together so
// the step functions below read as a direct transcription of it.
const (
	sleepAfterOrderCreate    = 60 * time.Second
	sleepAwaitingDealPoll    = 60 * time.Second
	sleepDealOpenedMatched   = 15 * time.Second
	sleepOrderCancelled      = 1 * time.Second
	sleepDealOpened          = 60 * time.Second
	sleepQuickRetry          = 1 * time.Second
	sleepTaskRunningPoll     = 60 * time.Second
	sleepWorkCompleted       = 0
)

// ConfigManager is the subset of *config.Manager a WorkNode needs: the
// current view of its own config, refreshed at the top of CREATE_ORDER
// so hot-reloaded price/ETS/resource changes take effect on the next
// order cycle (§4.5 "Already-running workers pick up per-tick config
// changes via reload_config").
type ConfigManager interface {
	GetNodeConfig(tag string) (config.NodeConfig, bool)
}

// WorkNode drives one logical node through its full lifecycle (§4.4).
type WorkNode struct {
	mu    sync.RWMutex
	state WorkNodeState

	api     marketapi.MarketAPI
	cfgMgr  ConfigManager
	clk     clock.Clock
	log     zerolog.Logger
	outDir  string
}

// New constructs a WorkNode starting from the given state.
func New(initial WorkNodeState, api marketapi.MarketAPI, cfgMgr ConfigManager, clk clock.Clock, log zerolog.Logger, outDir string) *WorkNode {
	return &WorkNode{
		state:  initial,
		api:    api,
		cfgMgr: cfgMgr,
		clk:    clk,
		log:    log.With().Str("tag", initial.Tag).Logger(),
		outDir: outDir,
	}
}

// Snapshot returns a point-in-time copy of the node's state, safe to
// call concurrently with Watch (§5).
func (wn *WorkNode) Snapshot() Snapshot {
	wn.mu.RLock()
	defer wn.mu.RUnlock()
	return wn.state.Snapshot()
}

// Watch drives the node until it reaches WORK_COMPLETED or stop fires.
// Cancellation is cooperative: stop is only observed at the top of each
// iteration, never during an in-flight MarketAPI call or sleep (§5).
// An unexpected panic inside a tick is recovered, logged as an
// InternalError, and leaves the node in its last status for the
// supervisor to retire (§4.4.3, §7).
func (wn *WorkNode) Watch(ctx context.Context, stop <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		default:
		}

		sleep := wn.tickSafely(ctx)

		if wn.Snapshot().Status == StateWorkCompleted {
			return
		}

		wn.clk.Sleep(sleep)
	}
}

func (wn *WorkNode) tickSafely(ctx context.Context) (next time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			wn.log.Error().Interface("panic", r).Str("status", string(wn.Snapshot().Status)).
				Msg("internal error in node loop, leaving node in last status")
			next = sleepTaskRunningPoll
		}
	}()
	return wn.tick(ctx)
}

func (wn *WorkNode) tick(ctx context.Context) time.Duration {
	status := wn.Snapshot().Status

	switch status {
	case StateStart, StateCreateOrder:
		return wn.stepCreateOrder(ctx)
	case StateAwaitingDeal:
		return wn.stepAwaitingDeal(ctx)
	case StateDealOpened:
		return wn.stepDealOpened(ctx)
	case StateDealDisappeared:
		return wn.stepDealDisappeared(ctx)
	case StateTaskRunning, StateStartingTask:
		return wn.stepPollTask(ctx)
	case StateTaskFailedToStart:
		return wn.stepCloseDeal(ctx, true, "fail", StateCreateOrder, sleepQuickRetry)
	case StateTaskFailed:
		return wn.stepCloseDeal(ctx, false, "fail", StateCreateOrder, sleepQuickRetry)
	case StateTaskBroken:
		return wn.stepCloseDeal(ctx, false, "fail", StateCreateOrder, sleepQuickRetry)
	case StateTaskFinished:
		return wn.stepCloseDeal(ctx, false, "success", StateWorkCompleted, sleepWorkCompleted)
	case StatePlacingOrder:
		// Never dispatched directly — PLACING_ORDER only exists as a
		// transient value set for the printer's benefit mid-tick.
		return sleepAfterOrderCreate
	case StateWorkCompleted:
		return sleepWorkCompleted
	default:
		return sleepTaskRunningPoll
	}
}

// stepCreateOrder implements START/CREATE_ORDER (§4.4): build a bid,
// price it, and call OrderCreate.
func (wn *WorkNode) stepCreateOrder(ctx context.Context) time.Duration {
	cfg := wn.refreshConfig()

	predicted, predictOK := wn.api.PredictBid(ctx, resourceSpecFrom(cfg))
	var predictedPtr *float64
	if predictOK {
		predictedPtr = &predicted
	}

	maxPrice := decimal.NewFromFloat(cfg.Task.MaxPriceUSD)
	price, err := pricing.Compute(predictedPtr, maxPrice, cfg.Task.PriceCoefficient)
	if err != nil {
		wn.log.Warn().Err(err).Msg("cannot price order this cycle, retrying next tick")
		return sleepAfterOrderCreate
	}

	wn.mu.Lock()
	wn.state.Price = price.StringFixed(4)
	wn.state.transitionTo(StatePlacingOrder)
	wn.mu.Unlock()

	bid := descriptor.BuildBid(cfg, price)
	if err := descriptor.PersistBid(wn.outDir, bid); err != nil {
		wn.log.Warn().Err(err).Msg("failed to persist bid descriptor")
	}

	bidBytes, err := descriptor.MarshalBid(bid)
	if err != nil {
		wn.log.Warn().Err(err).Msg("failed to marshal bid, retrying next tick")
		wn.mu.Lock()
		wn.state.transitionTo(StateCreateOrder)
		wn.mu.Unlock()
		return sleepAfterOrderCreate
	}

	wn.log.Info().Msg("creating order")
	orderID, ok := wn.api.OrderCreate(ctx, bidBytes)

	wn.mu.Lock()
	defer wn.mu.Unlock()
	if !ok {
		wn.state.transitionTo(StateCreateOrder)
		return sleepAfterOrderCreate
	}
	wn.state.OrderID = orderID
	wn.state.transitionTo(StateAwaitingDeal)
	wn.log.Info().Str("order_id", orderID).Msg("order placed, awaiting deal")
	return sleepAfterOrderCreate
}

// stepAwaitingDeal implements AWAITING_DEAL (§4.4).
func (wn *WorkNode) stepAwaitingDeal(ctx context.Context) time.Duration {
	orderID := wn.Snapshot().OrderID

	result, ok := wn.api.OrderStatus(ctx, orderID)
	if !ok {
		return sleepAwaitingDealPoll
	}

	wn.mu.Lock()
	defer wn.mu.Unlock()

	switch {
	case result.Matched():
		wn.state.DealID = result.DealID
		wn.state.transitionTo(StateDealOpened)
		wn.log.Info().Str("deal_id", result.DealID).Msg("deal opened")
		return sleepDealOpenedMatched
	case result.Cancelled():
		wn.state.OrderID = ""
		wn.state.transitionTo(StateCreateOrder)
		wn.log.Info().Msg("order cancelled, re-creating")
		return sleepOrderCancelled
	default:
		return sleepAwaitingDealPoll
	}
}

// stepDealOpened implements DEAL_OPENED (§4.4): start the task on the
// counterparty worker.
func (wn *WorkNode) stepDealOpened(ctx context.Context) time.Duration {
	cfg := wn.refreshConfig()
	dealID := wn.Snapshot().DealID

	taskBytes, err := descriptor.BuildTask(cfg.Task.TemplateFile, wn.Snapshot().Tag)
	if err != nil {
		wn.log.Warn().Err(err).Msg("failed to render task descriptor")
		wn.mu.Lock()
		wn.state.transitionTo(StateTaskFailedToStart)
		wn.mu.Unlock()
		return sleepQuickRetry
	}
	if err := descriptor.PersistTask(wn.outDir, cfg.Tag, taskBytes); err != nil {
		wn.log.Warn().Err(err).Msg("failed to persist task descriptor")
	}

	taskID, ok := wn.api.TaskStart(ctx, dealID, taskBytes)

	wn.mu.Lock()
	defer wn.mu.Unlock()
	if !ok {
		wn.state.transitionTo(StateTaskFailedToStart)
		wn.log.Warn().Msg("failed to start task")
		return sleepQuickRetry
	}
	wn.state.TaskID = taskID
	wn.state.transitionTo(StateTaskRunning)
	wn.log.Info().Str("task_id", taskID).Msg("task started")
	return sleepDealOpened
}

// stepDealDisappeared implements DEAL_DISAPPEARED (§4.4).
func (wn *WorkNode) stepDealDisappeared(ctx context.Context) time.Duration {
	wn.mu.Lock()
	defer wn.mu.Unlock()
	wn.state.transitionTo(StateCreateOrder)
	return sleepOrderCancelled
}

// stepPollTask implements the TASK_RUNNING (and STARTING_TASK resync)
// polling step of §4.4.1.
func (wn *WorkNode) stepPollTask(ctx context.Context) time.Duration {
	dealID := wn.Snapshot().DealID
	taskID := wn.Snapshot().TaskID

	dealStatus, ok := wn.api.DealStatus(ctx, dealID)
	if !ok {
		return sleepTaskRunningPoll
	}
	if dealStatus.Closed() {
		wn.mu.Lock()
		wn.state.transitionTo(StateDealDisappeared)
		wn.mu.Unlock()
		wn.log.Warn().Msg("deal disappeared while task was running")
		return sleepQuickRetry
	}

	wn.mu.Lock()
	wn.state.Price = marketapi.WireToHumanUSD(dealStatus.Price).StringFixed(4)
	wn.mu.Unlock()

	taskStatus, ok := wn.api.TaskStatus(ctx, dealID, taskID)
	if !ok {
		wn.mu.Lock()
		wn.state.transitionTo(StateTaskFailed)
		wn.mu.Unlock()
		return sleepQuickRetry
	}

	wn.mu.Lock()
	defer wn.mu.Unlock()

	switch taskStatus.Status {
	case marketapi.TaskStatusRunning:
		wn.state.TaskUptime = taskStatus.Uptime
		wn.state.Status = StateTaskRunning
		wn.log.Info().Int("uptime_s", taskStatus.Uptime).Msg("task running")
		return sleepTaskRunningPoll
	case marketapi.TaskStatusSpooling:
		wn.state.Status = StateStartingTask
		return sleepTaskRunningPoll
	case marketapi.TaskStatusBroken:
		ets := wn.state.Config.Task.ETS
		if taskStatus.Uptime < ets {
			wn.state.transitionTo(StateTaskFailedToStart)
			wn.log.Warn().Int("uptime_s", taskStatus.Uptime).Int("ets_s", ets).
				Msg("task broke before earliest tolerable stop, blacklisting worker")
		} else {
			wn.state.transitionTo(StateTaskBroken)
			wn.log.Warn().Int("uptime_s", taskStatus.Uptime).Msg("task broke after earliest tolerable stop")
		}
		return sleepQuickRetry
	case marketapi.TaskStatusFinished:
		wn.state.transitionTo(StateTaskFinished)
		wn.log.Info().Msg("task finished")
		return sleepQuickRetry
	default: // unknown, spawning
		return sleepTaskRunningPoll
	}
}

// stepCloseDeal implements §4.4.2: fetch DealStatus, close with/without
// blacklisting unless already closed, then capture task logs, and clear
// identifiers on the way into nextState.
func (wn *WorkNode) stepCloseDeal(ctx context.Context, blacklist bool, logKind string, nextState State, nextSleep time.Duration) time.Duration {
	snap := wn.Snapshot()
	dealID, taskID, tag := snap.DealID, snap.TaskID, snap.Tag

	if dealID == "" {
		wn.mu.Lock()
		wn.state.transitionTo(nextState)
		wn.mu.Unlock()
		return nextSleep
	}

	status, ok := wn.api.DealStatus(ctx, dealID)
	alreadyClosed := ok && status.Closed()

	if !alreadyClosed {
		wn.log.Info().Str("deal_id", dealID).Bool("blacklist", blacklist).Msg("closing deal")
		wn.api.DealClose(ctx, dealID, blacklist)
	}

	if taskID != "" {
		logPath := filepath.Join(wn.outDir, fmt.Sprintf("%s_%s-deal-%s.log", logKind, tag, dealID))
		wn.api.TaskLogs(ctx, dealID, taskID, tailLinesOnClose, logPath)
	}

	wn.mu.Lock()
	defer wn.mu.Unlock()
	wn.state.transitionTo(nextState)
	if nextState == StateWorkCompleted {
		wn.log.Info().Msg("work completed")
	}
	return nextSleep
}

func (wn *WorkNode) refreshConfig() config.NodeConfig {
	wn.mu.Lock()
	defer wn.mu.Unlock()
	if cfg, ok := wn.cfgMgr.GetNodeConfig(wn.state.Tag); ok {
		wn.state.Config = cfg
	}
	return wn.state.Config
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
