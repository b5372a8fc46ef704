package config

import (
	"fmt"
	"regexp"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
)

// Identity enumerates the marketplace identity levels a node can offer.
type Identity string

const (
	IdentityUnknown      Identity = "unknown"
	IdentityAnonymous    Identity = "anonymous"
	IdentityRegistered   Identity = "registered"
	IdentityIdentified   Identity = "identified"
	IdentityProfessional Identity = "professional"
)

var counterpartyPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// TaskConfig is the semantic schema of one per-task config file (§6).
// numberofnodes logical nodes are derived from it, tagged tag_1..tag_N.
type TaskConfig struct {
	NumberOfNodes    int      `mapstructure:"numberofnodes" validate:"required,min=1"`
	Tag              string   `mapstructure:"tag" validate:"required"`
	TemplateFile     string   `mapstructure:"template_file" validate:"required"`
	Duration         string   `mapstructure:"duration" validate:"required"`
	Identity         Identity `mapstructure:"identity" validate:"required,oneof=unknown anonymous registered identified professional"`
	Counterparty     string   `mapstructure:"counterparty"`
	MaxPriceUSD      float64  `mapstructure:"max_price" validate:"min=0"`
	PriceCoefficient int      `mapstructure:"price_coefficient"`
	ETS              int      `mapstructure:"ets" validate:"min=0"`

	RAMSizeMiB      int  `mapstructure:"ramsize" validate:"min=0"`
	StorageSizeGiB  int  `mapstructure:"storagesize" validate:"min=0"`
	CPUCores        int  `mapstructure:"cpucores" validate:"min=0"`
	SysbenchSingle  int  `mapstructure:"sysbenchsingle" validate:"min=0"`
	SysbenchMulti   int  `mapstructure:"sysbenchmulti" validate:"min=0"`
	NetDownloadMiBs int  `mapstructure:"netdownload" validate:"min=0"`
	NetUploadMiBs   int  `mapstructure:"netupload" validate:"min=0"`
	GPUCount        int  `mapstructure:"gpucount" validate:"min=0"`
	GPUMemMiB       int  `mapstructure:"gpumem" validate:"min=0"`
	EthHashrateMhs  int  `mapstructure:"ethhashrate" validate:"min=0"`
	Overlay         bool `mapstructure:"overlay"`
	Incoming        bool `mapstructure:"incoming"`

	// sourceFile is the path this TaskConfig was loaded from, used only
	// for error messages; not part of the semantic schema.
	sourceFile string
}

// NodeConfig is the resolved, per-node view of a TaskConfig: the task's
// fields plus this node's own tag/ordinal. WorkNodeState holds one.
type NodeConfig struct {
	Task    TaskConfig
	Tag     string
	Ordinal int
}

// NormalizedCounterparty returns the counterparty address if it is a
// syntactically valid Ethereum address, or "" otherwise — per §6, an
// invalid counterparty is treated as absent rather than a config error.
func (t TaskConfig) NormalizedCounterparty() string {
	if t.Counterparty == "" {
		return ""
	}
	if !common.IsHexAddress(t.Counterparty) || !counterpartyPattern.MatchString(t.Counterparty) {
		return ""
	}
	return t.Counterparty
}

// Nodes expands a TaskConfig into its NumberOfNodes NodeConfigs, tagged
// "<tag>_1".."<tag>_N".
func (t TaskConfig) Nodes() []NodeConfig {
	nodes := make([]NodeConfig, 0, t.NumberOfNodes)
	for i := 1; i <= t.NumberOfNodes; i++ {
		nodes = append(nodes, NodeConfig{
			Task:    t,
			Tag:     fmt.Sprintf("%s_%d", t.Tag, i),
			Ordinal: i,
		})
	}
	return nodes
}

func validateTask(v *validator.Validate, t *TaskConfig) error {
	if err := v.Struct(t); err != nil {
		return formatValidationError(t.sourceFile, err)
	}
	return nil
}

func formatValidationError(source string, err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return NewError(source, err.Error())
	}
	fields := make([]string, 0, len(verrs))
	for _, e := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", e.Field(), e.Tag()))
	}
	msg := "missing or invalid required keys: "
	for i, f := range fields {
		if i > 0 {
			msg += ", "
		}
		msg += f
	}
	return NewError(source, msg)
}
