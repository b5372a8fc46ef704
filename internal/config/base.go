package config

// EthereumConfig is the identity material section of the base config (§6).
type EthereumConfig struct {
	KeyPath  string `mapstructure:"key_path" validate:"required"`
	Password string `mapstructure:"password"`
}

// BaseConfig is the required-keys schema of the top-level config file.
type BaseConfig struct {
	NodeAddress string         `mapstructure:"node_address" validate:"required"`
	Ethereum    EthereumConfig `mapstructure:"ethereum" validate:"required"`
	Tasks       []string       `mapstructure:"tasks" validate:"required,min=1"`
}
