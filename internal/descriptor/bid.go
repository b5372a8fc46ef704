// Package descriptor builds the bid (order) and task documents a node
// submits to the marketplace from its NodeConfig, and persists the
// last-generated copy of each under out/ for operator inspection (§4.3,
// §6). Rendering these into the marketplace's actual wire format is out
// of scope (§1) — this package produces the fixed-shape intermediate
// documents the core hands to the (external) templating layer.
package descriptor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/marketfleet/supervisor/internal/config"
	"github.com/marketfleet/supervisor/internal/pricing"
)

// Resources is the benchmarks/network/GPU sub-document of a bid (§4.3).
type Resources struct {
	RAMSizeMiB      int `yaml:"ramsize"`
	StorageSizeGiB  int `yaml:"storagesize"`
	CPUCores        int `yaml:"cpucores"`
	SysbenchSingle  int `yaml:"sysbenchsingle"`
	SysbenchMulti   int `yaml:"sysbenchmulti"`
	NetDownloadMiBs int `yaml:"netdownload"`
	NetUploadMiBs   int `yaml:"netupload"`
	GPUCount        int `yaml:"gpucount"`
	GPUMemMiB       int `yaml:"gpumem"`
	EthHashrateMhs  int `yaml:"ethhashrate"`
	Overlay         bool `yaml:"overlay"`
	Incoming        bool `yaml:"incoming"`
}

// Bid is the fixed-shape order document submitted for a node (§4.3).
type Bid struct {
	Duration     string    `yaml:"duration"`
	Identity     string    `yaml:"identity"`
	Resources    Resources `yaml:"resources"`
	Tag          string    `yaml:"tag"`
	Price        string    `yaml:"price"` // integer wei-per-second, the wire form (§4.1)
	Counterparty string    `yaml:"counterparty,omitempty"`
}

// BuildBid renders a Bid document from a node's config and its current
// order price, converting the USD/hour price to the integer
// wei-per-second form the wire submits (§4.1). When GPUCount is 0,
// GPUMemMiB and EthHashrateMhs are forced to 0 regardless of configured
// values (§4.3).
func BuildBid(node config.NodeConfig, priceUSDPerHour decimal.Decimal) Bid {
	t := node.Task

	gpuMem := t.GPUMemMiB
	ethHashrate := t.EthHashrateMhs
	if t.GPUCount == 0 {
		gpuMem = 0
		ethHashrate = 0
	}

	return Bid{
		Duration: t.Duration,
		Identity: string(t.Identity),
		Resources: Resources{
			RAMSizeMiB:      t.RAMSizeMiB,
			StorageSizeGiB:  t.StorageSizeGiB,
			CPUCores:        t.CPUCores,
			SysbenchSingle:  t.SysbenchSingle,
			SysbenchMulti:   t.SysbenchMulti,
			NetDownloadMiBs: t.NetDownloadMiBs,
			NetUploadMiBs:   t.NetUploadMiBs,
			GPUCount:        t.GPUCount,
			GPUMemMiB:       gpuMem,
			EthHashrateMhs:  ethHashrate,
			Overlay:         t.Overlay,
			Incoming:        t.Incoming,
		},
		Tag:          node.Tag,
		Price:        pricing.HumanToWire(priceUSDPerHour).String(),
		Counterparty: t.NormalizedCounterparty(),
	}
}

// MarshalBid renders bid as the YAML document both the persisted
// out/orders/<tag>.yaml copy and the wire payload handed to MarketAPI's
// OrderCreate are built from.
func MarshalBid(bid Bid) ([]byte, error) {
	data, err := yaml.Marshal(bid)
	if err != nil {
		return nil, fmt.Errorf("marshal bid for %s: %w", bid.Tag, err)
	}
	return data, nil
}

// PersistBid writes the rendered bid to out/orders/<tag>.yaml, replacing
// any previous copy. The write goes to a temp file in the same directory
// first and is then renamed into place, so a concurrent reader never
// observes a half-written descriptor (§5 file I/O).
func PersistBid(outDir string, bid Bid) error {
	dir := filepath.Join(outDir, "orders")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := MarshalBid(bid)
	if err != nil {
		return err
	}

	dest := filepath.Join(dir, bid.Tag+".yaml")
	return writeAtomic(dest, data)
}

// writeAtomic writes data to a uuid-suffixed temp file next to dest and
// renames it into place.
func writeAtomic(dest string, data []byte) error {
	tmp := dest + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, dest)
}
