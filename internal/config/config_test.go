package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"code.dogecoin.org/airdrop/internal/spec"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Pool.Workers)
	assert.Equal(t, 2, cfg.Eligibility.MinActiveChannels)
	assert.Equal(t, 3*time.Second, cfg.Connect.AttemptTimeout.Duration)
	assert.Equal(t, 5*time.Second, cfg.Fund.AttemptTimeout.Duration)
	assert.Equal(t, int64(16000000), cfg.Fund.AmountSats)
	assert.Equal(t, 25, cfg.Fund.MaxFundings)
	assert.Equal(t, 0, cfg.Connect.MaxConnections)
	assert.Equal(t, 0, big.NewRat(1, 2).Cmp(cfg.Fund.PushFraction.Rat))
	assert.Equal(t, ":memory:", cfg.Journal.Path)
	assert.Empty(t, cfg.Web.Bind)

	cc := cfg.ConnectorConfig()
	assert.Equal(t, spec.DefaultAddressKinds, cc.AddressKinds)

	fc := cfg.FunderConfig()
	assert.Equal(t, 30*time.Second, fc.ListTimeout)
	assert.Equal(t, int64(16000000), fc.AmountSats)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "airdrop.toml")
	err := os.WriteFile(path, []byte(`
[Lightning]
RPCPath = "/tmp/lightning-rpc"

[Connect]
AttemptTimeout = "1500ms"
AddressKinds = ["ipv4", "torv3"]
MaxConnections = 10

[Fund]
PushFraction = "0.25"
MaxFundings = 3
`), 0o600)
	require.NoError(t, err)

	t.Setenv("AIRDROP_MAX_FUNDINGS", "7")
	t.Setenv("AIRDROP_FUND_TIMEOUT", "9s")
	t.Setenv("AIRDROP_WORKERS", "4")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/lightning-rpc", cfg.Lightning.RPCPath)
	assert.Equal(t, 1500*time.Millisecond, cfg.Connect.AttemptTimeout.Duration)
	assert.Equal(t, []spec.AddressKind{spec.KindIPv4, spec.KindTorV3}, cfg.ConnectorConfig().AddressKinds)
	assert.Equal(t, 10, cfg.Connect.MaxConnections)
	assert.Equal(t, 0, big.NewRat(1, 4).Cmp(cfg.Fund.PushFraction.Rat))
	// env wins over the file
	assert.Equal(t, 7, cfg.Fund.MaxFundings)
	assert.Equal(t, 9*time.Second, cfg.Fund.AttemptTimeout.Duration)
	assert.Equal(t, 4, cfg.Pool.Workers)
	// untouched values keep their defaults
	assert.Equal(t, int64(16000000), cfg.Fund.AmountSats)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error loading configuration file")
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".lightning/lightning-rpc"), expandHome("~/.lightning/lightning-rpc"))
	assert.Equal(t, "/abs/path", expandHome("/abs/path"))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"no workers", func(c *Config) { c.Pool.Workers = 0 }, "Pool.Workers"},
		{"zero connect timeout", func(c *Config) { c.Connect.AttemptTimeout.Duration = 0 }, "Connect.AttemptTimeout"},
		{"zero fund timeout", func(c *Config) { c.Fund.AttemptTimeout.Duration = 0 }, "Fund.AttemptTimeout"},
		{"unknown kind", func(c *Config) { c.Connect.AddressKinds = []string{"ipv4", "dns"} }, `unsupported kind "dns"`},
		{"push above one", func(c *Config) { c.Fund.PushFraction.Rat = big.NewRat(3, 2) }, "Fund.PushFraction"},
		{"push negative", func(c *Config) { c.Fund.PushFraction.Rat = big.NewRat(-1, 2) }, "Fund.PushFraction"},
		{"no amount", func(c *Config) { c.Fund.AmountSats = 0 }, "Fund.AmountSats"},
		{"negative cap", func(c *Config) { c.Connect.MaxConnections = -1 }, "Connect.MaxConnections"},
		{"no channel threshold", func(c *Config) { c.Eligibility.MinActiveChannels = 0 }, "Eligibility.MinActiveChannels"},
		{"no socket", func(c *Config) { c.Lightning.RPCPath = "" }, "Lightning.RPCPath"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}
}

func TestBadDurationText(t *testing.T) {
	var d Duration
	require.Error(t, d.UnmarshalText([]byte("soon")))
	require.NoError(t, d.UnmarshalText([]byte("250ms")))
	assert.Equal(t, 250*time.Millisecond, d.Duration)

	var f Fraction
	require.Error(t, f.UnmarshalText([]byte("half")))
}
