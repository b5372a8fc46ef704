package descriptor_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/marketfleet/supervisor/internal/config"
	"github.com/marketfleet/supervisor/internal/descriptor"
)

func TestBuildBid_PriceIsWeiPerSecondOnTheWire(t *testing.T) {
	cfg := config.NodeConfig{
		Tag: "gpu_1",
		Task: config.TaskConfig{
			Tag:         "gpu",
			Duration:    "1h",
			Identity:    config.IdentityAnonymous,
			MaxPriceUSD: 1.0,
		},
	}

	bid := descriptor.BuildBid(cfg, decimal.NewFromFloat(0.36))

	assert.Equal(t, "100000000000000", bid.Price)
}

func TestBuildBid_ZerosGPUFieldsWhenGPUCountIsZero(t *testing.T) {
	cfg := config.NodeConfig{
		Tag: "gpu_1",
		Task: config.TaskConfig{
			Tag:            "gpu",
			GPUCount:       0,
			GPUMemMiB:      8192,
			EthHashrateMhs: 120,
		},
	}

	bid := descriptor.BuildBid(cfg, decimal.Zero)

	assert.Equal(t, 0, bid.Resources.GPUMemMiB)
	assert.Equal(t, 0, bid.Resources.EthHashrateMhs)
}
