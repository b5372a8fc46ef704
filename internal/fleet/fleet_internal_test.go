package fleet

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketfleet/supervisor/internal/clock"
	"github.com/marketfleet/supervisor/internal/config"
	"github.com/marketfleet/supervisor/internal/marketapi"
	"github.com/marketfleet/supervisor/internal/worknode"
)

func TestNaturalLess_OrdersNumericSuffixesNumerically(t *testing.T) {
	tags := []string{"gpu_10", "gpu_2", "gpu_1"}
	assert.True(t, naturalLess("gpu_1", "gpu_2"))
	assert.True(t, naturalLess("gpu_2", "gpu_10"))
	assert.False(t, naturalLess("gpu_10", "gpu_2"))
	_ = tags
}

func TestFleet_TagsAreNaturalKeySorted(t *testing.T) {
	f := NewFleet()
	for _, tag := range []string{"gpu_10", "gpu_2", "gpu_1"} {
		f.add(tag, &member{node: &worknode.WorkNode{}})
	}
	assert.Equal(t, []string{"gpu_1", "gpu_2", "gpu_10"}, f.Tags())
}

func writeTestConfig(t *testing.T, numberOfNodes int) *config.Manager {
	t.Helper()
	dir := t.TempDir()

	taskYAML := "numberofnodes: " + strconv.Itoa(numberOfNodes) + "\n" +
		"tag: gpu\n" +
		"template_file: task.tmpl\n" +
		"duration: \"0h\"\n" +
		"identity: anonymous\n" +
		"max_price: 1.0\n" +
		"ets: 60\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "task.yaml"), []byte(taskYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "task.tmpl"), []byte("{{.node_tag}}"), 0o644))

	baseYAML := "node_address: http://localhost:1234\n" +
		"ethereum:\n  key_path: /tmp/keys\n  password: secret\n" +
		"tasks:\n  - task.yaml\n"
	baseFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(baseFile, []byte(baseYAML), 0o644))

	mgr, err := config.NewManager(baseFile)
	require.NoError(t, err)
	return mgr
}

// stubAPI answers reconciliation queries with fixed fixtures: one
// matched deal for gpu_1 (running), one open order for gpu_2.
type stubAPI struct{ marketapi.MarketAPI }

func (s stubAPI) DealList(ctx context.Context, limit int) []marketapi.Deal {
	return []marketapi.Deal{{ID: "D1"}}
}
func (s stubAPI) DealStatus(ctx context.Context, id string) (*marketapi.DealStatusResult, bool) {
	return &marketapi.DealStatusResult{Status: 1, BidID: "O1", Running: []string{"T1"}}, true
}
func (s stubAPI) OrderStatus(ctx context.Context, id string) (*marketapi.OrderStatusResult, bool) {
	return &marketapi.OrderStatusResult{OrderStatus: 1, Tag: "gpu_1", DealID: "D1"}, true
}
func (s stubAPI) OrderList(ctx context.Context, limit int) []marketapi.Order {
	return []marketapi.Order{{ID: "O2", Tag: "gpu_2"}}
}

func TestSupervisor_ReconcileIsIdempotent(t *testing.T) {
	mgr := writeTestConfig(t, 2)
	sup := NewSupervisor(mgr, stubAPI{}, clock.NewReal(), zerolog.Nop(), t.TempDir())

	first, err := sup.reconcile(context.Background())
	require.NoError(t, err)
	second, err := sup.reconcile(context.Background())
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for tag, st := range first {
		assert.Equal(t, st.Status, second[tag].Status, "tag %s", tag)
	}

	assert.Equal(t, worknode.StateTaskRunning, first["gpu_1"].Status)
	assert.Equal(t, worknode.StateAwaitingDeal, first["gpu_2"].Status)
}

// stubAwaitingAPI leaves every order perpetually unmatched, so a worker
// in AWAITING_DEAL never advances on its own — it only ever stops when
// its stop channel is closed.
type stubAwaitingAPI struct{ marketapi.MarketAPI }

func (s stubAwaitingAPI) OrderStatus(ctx context.Context, id string) (*marketapi.OrderStatusResult, bool) {
	return &marketapi.OrderStatusResult{OrderStatus: 0}, true
}

func TestApplyReload_StopsRemovedNodeAndKeepsOthers(t *testing.T) {
	dir := t.TempDir()
	taskYAML := "numberofnodes: 2\n" +
		"tag: gpu\n" +
		"template_file: task.tmpl\n" +
		"duration: \"0h\"\n" +
		"identity: anonymous\n" +
		"max_price: 1.0\n" +
		"ets: 60\n"
	taskFile := filepath.Join(dir, "task.yaml")
	require.NoError(t, os.WriteFile(taskFile, []byte(taskYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "task.tmpl"), []byte("{{.node_tag}}"), 0o644))

	baseYAML := "node_address: http://localhost:1234\n" +
		"ethereum:\n  key_path: /tmp/keys\n  password: secret\n" +
		"tasks:\n  - task.yaml\n"
	baseFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(baseFile, []byte(baseYAML), 0o644))

	mgr, err := config.NewManager(baseFile)
	require.NoError(t, err)

	sup := NewSupervisor(mgr, stubAwaitingAPI{}, clock.NewMock(time.Time{}), zerolog.Nop(), t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, n := range mgr.Current().Nodes() {
		st := worknode.NewFreshState(n)
		st.Status = worknode.StateAwaitingDeal
		st.OrderID = "O-" + n.Tag
		sup.spawn(ctx, n.Tag, st)
	}
	require.ElementsMatch(t, []string{"gpu_1", "gpu_2"}, sup.fleet.Tags())

	// Drop gpu_2 from the config on disk, then reload.
	require.NoError(t, os.WriteFile(taskFile, []byte(
		"numberofnodes: 1\n"+
			"tag: gpu\n"+
			"template_file: task.tmpl\n"+
			"duration: \"0h\"\n"+
			"identity: anonymous\n"+
			"max_price: 1.0\n"+
			"ets: 60\n"), 0o644))
	sup.applyReload(ctx)

	require.Eventually(t, func() bool {
		return !sup.fleet.Has("gpu_2")
	}, time.Second, 5*time.Millisecond, "gpu_2's worker should stop after being dropped from config")

	assert.True(t, sup.fleet.Has("gpu_1"), "gpu_1 should keep running across reload")
}
