// Package config loads the run configuration: built-in defaults, then an
// optional TOML file, then AIRDROP_* environment variables.
package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env"
	"github.com/hermeznetwork/tracerr"

	"code.dogecoin.org/airdrop/internal/connector"
	"code.dogecoin.org/airdrop/internal/funder"
	"code.dogecoin.org/airdrop/internal/spec"
)

// Duration is used to unmarshal a "1s" style duration from TOML or env.
type Duration struct {
	time.Duration
}

// UnmarshalText unmarshalls time duration from text.
func (d *Duration) UnmarshalText(data []byte) error {
	duration, err := time.ParseDuration(string(data))
	if err != nil {
		return tracerr.Wrap(err)
	}
	d.Duration = duration
	return nil
}

// Fraction is a rational number written as "1/2" or "0.5".
type Fraction struct {
	*big.Rat
}

func (f *Fraction) UnmarshalText(data []byte) error {
	r, ok := new(big.Rat).SetString(string(data))
	if !ok {
		return tracerr.Wrap(fmt.Errorf("invalid fraction %q", string(data)))
	}
	f.Rat = r
	return nil
}

// Lightning is the node client configuration.
type Lightning struct {
	RPCPath     string   `toml:"RPCPath" env:"AIRDROP_RPC_PATH"`
	CallTimeout Duration `toml:"CallTimeout" env:"AIRDROP_CALL_TIMEOUT"`
}

type Log struct {
	Level string   `toml:"Level" env:"AIRDROP_LOG_LEVEL"`
	Out   []string `toml:"Out" env:"AIRDROP_LOG_OUT" envSeparator:","`
}

type Pool struct {
	Workers int `toml:"Workers" env:"AIRDROP_WORKERS"`
}

type Eligibility struct {
	MinActiveChannels int `toml:"MinActiveChannels" env:"AIRDROP_MIN_ACTIVE_CHANNELS"`
}

type Connect struct {
	AttemptTimeout Duration `toml:"AttemptTimeout" env:"AIRDROP_CONNECT_TIMEOUT"`
	AddressKinds   []string `toml:"AddressKinds" env:"AIRDROP_ADDRESS_KINDS" envSeparator:","`
	MaxConnections int      `toml:"MaxConnections" env:"AIRDROP_MAX_CONNECTIONS"`
}

type Fund struct {
	AmountSats     int64    `toml:"AmountSats" env:"AIRDROP_AMOUNT_SATS"`
	PushFraction   Fraction `toml:"PushFraction" env:"AIRDROP_PUSH_FRACTION"`
	MaxFundings    int      `toml:"MaxFundings" env:"AIRDROP_MAX_FUNDINGS"`
	MinConf        int      `toml:"MinConf" env:"AIRDROP_MINCONF"`
	AttemptTimeout Duration `toml:"AttemptTimeout" env:"AIRDROP_FUND_TIMEOUT"`
}

// Journal is where attempt outcomes are recorded; ":memory:" keeps them
// for the run only.
type Journal struct {
	Path string `toml:"Path" env:"AIRDROP_JOURNAL"`
}

// Web is the optional status API; empty Bind disables it.
type Web struct {
	Bind string `toml:"Bind" env:"AIRDROP_WEB_BIND"`
}

// Config is the configuration of one airdrop run.
type Config struct {
	Lightning   Lightning
	Log         Log
	Pool        Pool
	Eligibility Eligibility
	Connect     Connect
	Fund        Fund
	Journal     Journal
	Web         Web
}

// DefaultValues are the built-in defaults, in TOML.
const DefaultValues = `
[Lightning]
RPCPath = "~/.lightning/testnet/lightning-rpc"
CallTimeout = "30s"

[Log]
Level = "info"
Out = ["stdout"]

[Pool]
Workers = 20

[Eligibility]
MinActiveChannels = 2

[Connect]
AttemptTimeout = "3s"
AddressKinds = ["ipv4", "ipv6", "torv2", "torv3"]
MaxConnections = 0

[Fund]
AmountSats = 16000000
PushFraction = "1/2"
MaxFundings = 25
MinConf = 0
AttemptTimeout = "5s"

[Journal]
Path = ":memory:"

[Web]
Bind = ""
`

func loadDefault(defaultValues string, cfg interface{}) error {
	if _, err := toml.Decode(defaultValues, cfg); err != nil {
		return err
	}
	return nil
}

func loadFile(path string, cfg interface{}) error {
	bs, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return err
	}
	if _, err := toml.Decode(string(bs), cfg); err != nil {
		return err
	}
	return nil
}

// envParsers decode the struct-valued settings from their text form.
var envParsers = env.CustomParsers{
	reflect.TypeOf(Duration{}): func(v string) (interface{}, error) {
		var d Duration
		err := d.UnmarshalText([]byte(v))
		return d, err
	},
	reflect.TypeOf(Fraction{}): func(v string) (interface{}, error) {
		var f Fraction
		err := f.UnmarshalText([]byte(v))
		return f, err
	},
}

// loadEnv applies environment overrides section by section
// (env.Parse does not descend into nested structs).
func loadEnv(cfg *Config) error {
	sections := []interface{}{
		&cfg.Lightning, &cfg.Log, &cfg.Pool, &cfg.Eligibility,
		&cfg.Connect, &cfg.Fund, &cfg.Journal, &cfg.Web,
	}
	for _, section := range sections {
		if err := env.ParseWithFuncs(section, envParsers); err != nil {
			return err
		}
	}
	return nil
}

// Load reads the defaults, then filePath (if not empty), then the environment.
func Load(filePath string) (*Config, error) {
	var cfg Config
	if err := loadDefault(DefaultValues, &cfg); err != nil {
		return nil, tracerr.Wrap(fmt.Errorf("error loading default configuration: %w", err))
	}
	if filePath != "" {
		if err := loadFile(filePath, &cfg); err != nil {
			return nil, tracerr.Wrap(fmt.Errorf("error loading configuration file: %w", err))
		}
	}
	if err := loadEnv(&cfg); err != nil {
		return nil, tracerr.Wrap(fmt.Errorf("error loading environment variables: %w", err))
	}
	cfg.Lightning.RPCPath = expandHome(cfg.Lightning.RPCPath)
	if err := cfg.Validate(); err != nil {
		return nil, tracerr.Wrap(err)
	}
	return &cfg, nil
}

func expandHome(path string) string {
	if len(path) < 2 || path[:2] != "~/" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// Validate checks the values that would make a run misbehave.
func (c *Config) Validate() error {
	if c.Lightning.RPCPath == "" {
		return fmt.Errorf("Lightning.RPCPath is required")
	}
	if c.Lightning.CallTimeout.Duration <= 0 {
		return fmt.Errorf("Lightning.CallTimeout must be positive")
	}
	if c.Pool.Workers < 1 {
		return fmt.Errorf("Pool.Workers must be at least 1")
	}
	if c.Eligibility.MinActiveChannels < 1 {
		return fmt.Errorf("Eligibility.MinActiveChannels must be at least 1")
	}
	if c.Connect.AttemptTimeout.Duration <= 0 {
		return fmt.Errorf("Connect.AttemptTimeout must be positive")
	}
	if c.Connect.MaxConnections < 0 {
		return fmt.Errorf("Connect.MaxConnections cannot be negative")
	}
	for _, k := range c.Connect.AddressKinds {
		if !spec.KnownAddressKind(spec.AddressKind(k)) {
			return fmt.Errorf("Connect.AddressKinds: unsupported kind %q", k)
		}
	}
	if c.Fund.AmountSats <= 0 {
		return fmt.Errorf("Fund.AmountSats must be positive")
	}
	if err := funder.ValidFraction(c.Fund.PushFraction.Rat); err != nil {
		return fmt.Errorf("Fund.PushFraction: %w", err)
	}
	if c.Fund.MaxFundings < 0 {
		return fmt.Errorf("Fund.MaxFundings cannot be negative")
	}
	if c.Fund.MinConf < 0 {
		return fmt.Errorf("Fund.MinConf cannot be negative")
	}
	if c.Fund.AttemptTimeout.Duration <= 0 {
		return fmt.Errorf("Fund.AttemptTimeout must be positive")
	}
	return nil
}

// ConnectorConfig is the connector view of the configuration.
func (c *Config) ConnectorConfig() connector.Config {
	kinds := make([]spec.AddressKind, 0, len(c.Connect.AddressKinds))
	for _, k := range c.Connect.AddressKinds {
		kinds = append(kinds, spec.AddressKind(k))
	}
	return connector.Config{
		AttemptTimeout: c.Connect.AttemptTimeout.Duration,
		AddressKinds:   kinds,
		MaxConnections: c.Connect.MaxConnections,
	}
}

// FunderConfig is the funder view of the configuration.
func (c *Config) FunderConfig() funder.Config {
	return funder.Config{
		AmountSats:     c.Fund.AmountSats,
		PushFraction:   c.Fund.PushFraction.Rat,
		MaxFundings:    c.Fund.MaxFundings,
		MinConf:        c.Fund.MinConf,
		AttemptTimeout: c.Fund.AttemptTimeout.Duration,
		ListTimeout:    c.Lightning.CallTimeout.Duration,
	}
}
