package worknode_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cucumber/godog"
	"github.com/rs/zerolog"

	"github.com/marketfleet/supervisor/internal/clock"
	"github.com/marketfleet/supervisor/internal/config"
	"github.com/marketfleet/supervisor/internal/marketapi"
	"github.com/marketfleet/supervisor/internal/worknode"
)

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: initializeLifecycleScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"testdata/features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

// lifecycleContext carries one scenario's fixture and the node it drives.
// A fresh instance backs every scenario via the Before hook.
type lifecycleContext struct {
	api *mockAPI
	clk *clock.MockClock
	wn  *worknode.WorkNode
	cfg *config.NodeConfig // shared with liveConfig so later steps can still edit it
	ets int
}

// liveConfig is a ConfigManager over a single pointer, so Given steps
// that run after node creation (e.g. setting the ETS) still take effect
// once the node's next refreshConfig() call picks them up.
type liveConfig struct{ cfg *config.NodeConfig }

func (l liveConfig) GetNodeConfig(tag string) (config.NodeConfig, bool) {
	if l.cfg == nil || l.cfg.Tag != tag {
		return config.NodeConfig{}, false
	}
	return *l.cfg, true
}

func (lc *lifecycleContext) reset() {
	lc.api = &mockAPI{}
	lc.clk = clock.NewMock(time.Time{})
	lc.wn = nil
	lc.cfg = nil
	lc.ets = 60
}

func initializeLifecycleScenario(sc *godog.ScenarioContext) {
	lc := &lifecycleContext{}

	sc.Before(func(ctx context.Context, s *godog.Scenario) (context.Context, error) {
		lc.reset()
		return ctx, nil
	})

	sc.Step(`^a fresh node tagged "([^"]*)"$`, lc.aFreshNodeTagged)
	sc.Step(`^the node's earliest tolerable stop is (\d+) seconds$`, lc.theNodesEarliestTolerableStopIsSeconds)
	sc.Step(`^the marketplace will match its order into deal "([^"]*)"$`, lc.theMarketplaceWillMatchItsOrderIntoDeal)
	sc.Step(`^the marketplace will cancel its first order$`, lc.theMarketplaceWillCancelItsFirstOrder)
	sc.Step(`^the marketplace will match its second order into deal "([^"]*)"$`, lc.theMarketplaceWillMatchItsSecondOrderIntoDeal)
	sc.Step(`^the started task finishes after running for (\d+) seconds$`, lc.theStartedTaskFinishesAfterRunningForSeconds)
	sc.Step(`^the started task breaks after running for (\d+) seconds$`, lc.theStartedTaskBreaksAfterRunningForSeconds)
	sc.Step(`^the started task is running$`, lc.theStartedTaskIsRunning)
	sc.Step(`^the deal "([^"]*)" vanishes from the marketplace without being closed$`, lc.theDealVanishesWithoutBeingClosed)
	sc.Step(`^the node runs until it stops or reaches a terminal state$`, lc.theNodeRunsUntilItStopsOrReachesATerminalState)
	sc.Step(`^the node's final status is "([^"]*)"$`, lc.theNodesFinalStatusIs)
	sc.Step(`^the node has cycled back to retry$`, lc.theNodeHasCycledBackToRetry)
	sc.Step(`^the deal "([^"]*)" was closed without blacklisting$`, lc.theDealWasClosedWithoutBlacklisting)
	sc.Step(`^the deal "([^"]*)" was closed with blacklisting$`, lc.theDealWasClosedWithBlacklisting)
	sc.Step(`^no close call was ever made for deal "([^"]*)"$`, lc.noCloseCallWasEverMadeForDeal)
}

func (lc *lifecycleContext) aFreshNodeTagged(tag string) error {
	dir, err := os.MkdirTemp("", "bdd-lifecycle-")
	if err != nil {
		return err
	}
	tmpl := filepath.Join(dir, "task.tmpl")
	if err := os.WriteFile(tmpl, []byte("node: {{.node_tag}}"), 0o644); err != nil {
		return err
	}

	cfg := config.NodeConfig{
		Tag:     tag,
		Ordinal: 1,
		Task: config.TaskConfig{
			Tag:          tag,
			TemplateFile: tmpl,
			Duration:     "0h",
			Identity:     config.IdentityAnonymous,
			MaxPriceUSD:  1.0,
			ETS:          lc.ets,
		},
	}
	lc.cfg = &cfg
	lc.wn = worknode.New(worknode.NewFreshState(cfg), lc.api, liveConfig{lc.cfg}, lc.clk, zerolog.Nop(), dir)
	return nil
}

func (lc *lifecycleContext) theNodesEarliestTolerableStopIsSeconds(seconds int) error {
	lc.ets = seconds
	if lc.cfg != nil {
		lc.cfg.Task.ETS = seconds
	}
	return nil
}

func (lc *lifecycleContext) theMarketplaceWillMatchItsOrderIntoDeal(dealID string) error {
	lc.api.orderCreateID = "O1"
	lc.api.orderStatus = append(lc.api.orderStatus, marketapi.OrderStatusResult{OrderStatus: 1, DealID: dealID})
	lc.api.taskStartID = "T1"
	return nil
}

func (lc *lifecycleContext) theMarketplaceWillCancelItsFirstOrder() error {
	lc.api.orderCreateID = "O1"
	lc.api.orderStatus = append(lc.api.orderStatus, marketapi.OrderStatusResult{OrderStatus: 1, DealID: "0"})
	return nil
}

func (lc *lifecycleContext) theMarketplaceWillMatchItsSecondOrderIntoDeal(dealID string) error {
	lc.api.orderStatus = append(lc.api.orderStatus, marketapi.OrderStatusResult{OrderStatus: 1, DealID: dealID})
	lc.api.taskStartID = "T2"
	return nil
}

func (lc *lifecycleContext) theStartedTaskFinishesAfterRunningForSeconds(uptime int) error {
	lc.api.taskStatus = append(lc.api.taskStatus, marketapi.TaskStatusResult{Status: marketapi.TaskStatusFinished, Uptime: uptime})
	return nil
}

func (lc *lifecycleContext) theStartedTaskBreaksAfterRunningForSeconds(uptime int) error {
	lc.api.taskStatus = append(lc.api.taskStatus, marketapi.TaskStatusResult{Status: marketapi.TaskStatusBroken, Uptime: uptime})
	return nil
}

func (lc *lifecycleContext) theStartedTaskIsRunning() error {
	lc.api.taskStatus = append(lc.api.taskStatus, marketapi.TaskStatusResult{Status: marketapi.TaskStatusRunning, Uptime: 10})
	return nil
}

func (lc *lifecycleContext) theDealVanishesWithoutBeingClosed(dealID string) error {
	lc.api.dealStatus = append(lc.api.dealStatus, marketapi.DealStatusResult{Status: 2})
	return nil
}

// theNodeRunsUntilItStopsOrReachesATerminalState drives the node with a
// background Watch goroutine until it reaches WORK_COMPLETED, or records
// its first DealClose call (meaning it has cycled back around), or a
// fixed grace window elapses with neither — which is itself the correct
// outcome for the scenario where the deal disappears without ever being
// closed.
//
// It deliberately never polls the node's transient Status: with a
// MockClock, Watch's loop never really sleeps, so any individual status
// value is visible for a vanishingly small window between ticks.
// DealCloseCalls is a monotonic log instead — once non-empty, it stays
// that way, so the exact instant it's observed doesn't matter.
func (lc *lifecycleContext) theNodeRunsUntilItStopsOrReachesATerminalState() error {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		lc.wn.Watch(context.Background(), stop)
	}()

	grace := time.After(300 * time.Millisecond)
	for {
		select {
		case <-done:
			close(stop)
			return nil
		case <-grace:
			close(stop)
			<-done
			return nil
		default:
		}
		if len(lc.api.DealCloseCalls()) > 0 {
			close(stop)
			<-done
			return nil
		}
		time.Sleep(time.Millisecond)
	}
}

func (lc *lifecycleContext) theNodesFinalStatusIs(status string) error {
	got := string(lc.wn.Snapshot().Status)
	if got != status {
		return fmt.Errorf("expected final status %q, got %q", status, got)
	}
	return nil
}

// theNodeHasCycledBackToRetry checks that the node closed at least one
// deal, meaning it ran a full place-deal-task-close cycle and looped
// back around. It deliberately doesn't assert on the node's current
// status: the watch loop keeps free-spinning past the close call until
// the runner step notices and stops it, so by the time the scenario
// reaches this step the node may already be several steps into its next
// cycle.
func (lc *lifecycleContext) theNodeHasCycledBackToRetry() error {
	if len(lc.api.DealCloseCalls()) == 0 {
		return fmt.Errorf("expected the node to have closed a deal and cycled back, but no close call was made")
	}
	return nil
}

func (lc *lifecycleContext) theDealWasClosedWithoutBlacklisting(dealID string) error {
	calls := lc.api.DealCloseCalls()
	if len(calls) == 0 {
		return fmt.Errorf("no deal close calls were made")
	}
	last := calls[len(calls)-1]
	if last.DealID != dealID {
		return fmt.Errorf("expected deal close for %q, got %q", dealID, last.DealID)
	}
	if last.Blacklist {
		return fmt.Errorf("expected deal %q to close without blacklisting", dealID)
	}
	return nil
}

func (lc *lifecycleContext) theDealWasClosedWithBlacklisting(dealID string) error {
	calls := lc.api.DealCloseCalls()
	if len(calls) == 0 {
		return fmt.Errorf("no deal close calls were made")
	}
	last := calls[len(calls)-1]
	if last.DealID != dealID {
		return fmt.Errorf("expected deal close for %q, got %q", dealID, last.DealID)
	}
	if !last.Blacklist {
		return fmt.Errorf("expected deal %q to close with blacklisting", dealID)
	}
	return nil
}

func (lc *lifecycleContext) noCloseCallWasEverMadeForDeal(dealID string) error {
	for _, c := range lc.api.DealCloseCalls() {
		if c.DealID == dealID {
			return fmt.Errorf("unexpected close call for deal %q", dealID)
		}
	}
	return nil
}
