package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/pcristin/zeroland-landing/internal/chain"
	"github.com/pcristin/zeroland-landing/internal/networks"
	"github.com/pcristin/zeroland-landing/internal/secrets"
)

var ErrInvalidConfig = errors.New("invalid config")

var (
	MinAmount       = decimal.RequireFromString("0.00001")
	SupportedTokens = []string{"USDC"}
)

// Bridged USDC on Linea.
const lineaUSDC = "0x176211869cA2b568f2A7D4EE941E073a821EE1ff"

type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar")
	}
	if value.Value == "" {
		d.Duration = 0
		return nil
	}
	if value.Tag == "!!int" {
		var v int64
		if err := value.Decode(&v); err != nil {
			return err
		}
		d.Duration = time.Duration(v) * time.Millisecond
		return nil
	}
	dur, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	d.Duration = dur
	return nil
}

// Amount keeps the literal digits of a YAML number or string so that
// "0.1" never passes through float64.
type Amount struct {
	decimal.Decimal
	set bool
}

func (a *Amount) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("amount must be a scalar")
	}
	if strings.TrimSpace(value.Value) == "" {
		return nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(value.Value))
	if err != nil {
		return fmt.Errorf("invalid amount %q", value.Value)
	}
	a.Decimal = d
	a.set = true
	return nil
}

func (a Amount) IsSet() bool { return a.set }

func NewAmount(d decimal.Decimal) Amount { return Amount{Decimal: d, set: true} }

type NetworkConfig struct {
	RPCURL               string `yaml:"rpc_url"`
	ExplorerURL          string `yaml:"explorer_url"`
	USDCAddress          string `yaml:"usdc_address"`
	PoolAddress          string `yaml:"pool_address"`
	WrappedNativeAddress string `yaml:"wrapped_native_address"`
}

type RPCConfig struct {
	RequestTimeout   Duration `yaml:"request_timeout"`
	ProxyMaxAttempts int      `yaml:"proxy_max_attempts"`
	ProxyBackoff     Duration `yaml:"proxy_backoff"`
	CheckProxy       bool     `yaml:"check_proxy"`
	ProxyCheckURL    string   `yaml:"proxy_check_url"`
	UserAgent        string   `yaml:"user_agent"`
}

type TxConfig struct {
	FeeMode              string  `yaml:"fee_mode"`
	ApproveFeeMode       string  `yaml:"approve_fee_mode"`
	FeeMultiplier        float64 `yaml:"fee_multiplier"`
	GasLimitMultiplier   float64 `yaml:"gas_limit_multiplier"`
	BudgetGasUnits       uint64  `yaml:"budget_gas_units"`
	BudgetBlocks         uint64  `yaml:"budget_blocks"`
	BudgetPercentile     float64 `yaml:"budget_percentile"`
	ApproveGasLimit      uint64  `yaml:"approve_gas_limit"`
	WrapGasLimit         uint64  `yaml:"wrap_gas_limit"`
	ApproveAmount        string  `yaml:"approve_amount"`
	SkipApproveIfAllowed *bool   `yaml:"skip_approve_if_allowed"`
	ReferralCode         uint16  `yaml:"referral_code"`
	VerifyDeposit        *bool   `yaml:"verify_deposit"`
}

type ConfirmConfig struct {
	PollInterval Duration `yaml:"poll_interval"`
	Timeout      Duration `yaml:"timeout"`
}

type SecretsConfig struct {
	EnvFile               string `yaml:"env_file"`
	PrivateKeysEnv        string `yaml:"private_keys_env"`
	ProxiesEnv            string `yaml:"proxies_env"`
	KeystorePassphraseEnv string `yaml:"keystore_passphrase_env"`
	AWSRegion             string `yaml:"aws_region"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
}

type EventsConfig struct {
	Driver  string   `yaml:"driver"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type JournalConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

type Config struct {
	Network    string `yaml:"network"`
	Token      string `yaml:"token"`
	Amount     Amount `yaml:"amount"`
	PrivateKey string `yaml:"private_key"`
	Proxy      string `yaml:"proxy"`

	Networks map[string]NetworkConfig `yaml:"networks"`

	RPC     RPCConfig     `yaml:"rpc"`
	Tx      TxConfig      `yaml:"tx"`
	Confirm ConfirmConfig `yaml:"confirm"`
	Secrets SecretsConfig `yaml:"secrets"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	Events  EventsConfig  `yaml:"events"`
	Journal JournalConfig `yaml:"journal"`
}

// Contracts are the resolved addresses for the selected network.
type Contracts struct {
	USDC          common.Address
	Pool          common.Address
	WrappedNative common.Address
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Token == "" {
		c.Token = "USDC"
	}
	if c.RPC.RequestTimeout.Duration == 0 {
		c.RPC.RequestTimeout = Duration{Duration: 30 * time.Second}
	}
	if c.RPC.ProxyMaxAttempts == 0 {
		c.RPC.ProxyMaxAttempts = 3
	}
	if c.RPC.ProxyBackoff.Duration == 0 {
		c.RPC.ProxyBackoff = Duration{Duration: time.Second}
	}
	if c.RPC.ProxyCheckURL == "" {
		c.RPC.ProxyCheckURL = chain.DefaultProxyCheckURL
	}
	if c.Tx.FeeMode == "" {
		c.Tx.FeeMode = "eip1559"
	}
	if c.Tx.ApproveFeeMode == "" {
		c.Tx.ApproveFeeMode = "legacy"
	}
	if c.Tx.FeeMultiplier == 0 {
		c.Tx.FeeMultiplier = 1.25
	}
	if c.Tx.GasLimitMultiplier == 0 {
		c.Tx.GasLimitMultiplier = 1.5
	}
	if c.Tx.BudgetGasUnits == 0 {
		c.Tx.BudgetGasUnits = 70_000
	}
	if c.Tx.BudgetBlocks == 0 {
		c.Tx.BudgetBlocks = 10
	}
	if c.Tx.BudgetPercentile == 0 {
		c.Tx.BudgetPercentile = 50
	}
	if c.Tx.ApproveGasLimit == 0 {
		c.Tx.ApproveGasLimit = 300_000
	}
	if c.Tx.WrapGasLimit == 0 {
		c.Tx.WrapGasLimit = 100_000
	}
	if c.Tx.ApproveAmount == "" {
		c.Tx.ApproveAmount = "max"
	}
	if c.Tx.SkipApproveIfAllowed == nil {
		c.Tx.SkipApproveIfAllowed = boolPtr(true)
	}
	if c.Tx.VerifyDeposit == nil {
		c.Tx.VerifyDeposit = boolPtr(true)
	}
	if c.Confirm.PollInterval.Duration == 0 {
		c.Confirm.PollInterval = Duration{Duration: 10 * time.Second}
	}
	if c.Confirm.Timeout.Duration == 0 {
		c.Confirm.Timeout = Duration{Duration: 120 * time.Second}
	}
	if c.Secrets.EnvFile == "" {
		c.Secrets.EnvFile = ".env"
	}
	if c.Secrets.PrivateKeysEnv == "" {
		c.Secrets.PrivateKeysEnv = "PRIVATE_KEYS"
	}
	if c.Secrets.ProxiesEnv == "" {
		c.Secrets.ProxiesEnv = "PROXIES"
	}
	if c.Secrets.KeystorePassphraseEnv == "" {
		c.Secrets.KeystorePassphraseEnv = "LANDING_KEYSTORE_PASSPHRASE"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Metrics.Job == "" {
		c.Metrics.Job = "landing"
	}
	if c.Events.Driver == "" {
		c.Events.Driver = "none"
	}
	if c.Events.Topic == "" {
		c.Events.Topic = "landing.tx"
	}
	if c.Journal.Driver == "" {
		c.Journal.Driver = "none"
	}
	if c.Journal.Path == "" {
		c.Journal.Path = "data/journal.json"
	}
}

func (c *Config) validate() error {
	var errs []error
	add := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(c.Network) == "" {
		add("network is required")
	} else if _, err := c.Descriptor(); err != nil {
		add("%v", err)
	} else if _, err := c.Contracts(); err != nil {
		add("%v", err)
	}
	if !tokenSupported(c.Token) {
		add("unsupported token %q (supported: %s)", c.Token, strings.Join(SupportedTokens, ", "))
	}
	if err := ValidateAmount(c.Amount); err != nil {
		add("%v", err)
	}
	if strings.TrimSpace(c.PrivateKey) == "" {
		add("private_key is required")
	} else if !secrets.IsReference(c.PrivateKey) && !isHexKey(c.PrivateKey) {
		add("private_key is neither a 32-byte hex key nor a secret reference")
	}
	if c.Proxy != "" && !secrets.IsReference(c.Proxy) {
		if _, err := chain.ParseProxy(c.Proxy); err != nil {
			add("proxy: %v", err)
		}
	}
	if c.RPC.ProxyMaxAttempts < 1 {
		add("rpc.proxy_max_attempts must be >= 1")
	}
	for _, m := range []struct{ name, v string }{{"tx.fee_mode", c.Tx.FeeMode}, {"tx.approve_fee_mode", c.Tx.ApproveFeeMode}} {
		switch strings.ToLower(m.v) {
		case "eip1559", "dynamic", "1559", "legacy", "auto":
		default:
			add("%s %q must be eip1559, legacy or auto", m.name, m.v)
		}
	}
	if !finite(c.Tx.FeeMultiplier) || c.Tx.FeeMultiplier < 1 {
		add("tx.fee_multiplier must be a finite number >= 1")
	}
	if !finite(c.Tx.GasLimitMultiplier) || c.Tx.GasLimitMultiplier < 1 {
		add("tx.gas_limit_multiplier must be a finite number >= 1")
	}
	if !finite(c.Tx.BudgetPercentile) || c.Tx.BudgetPercentile <= 0 || c.Tx.BudgetPercentile > 100 {
		add("tx.budget_percentile must be in (0, 100]")
	}
	if !strings.EqualFold(c.Tx.ApproveAmount, "max") {
		if d, err := decimal.NewFromString(c.Tx.ApproveAmount); err != nil || !d.IsPositive() {
			add("tx.approve_amount must be \"max\" or a positive decimal")
		}
	}
	if c.Confirm.PollInterval.Duration > c.Confirm.Timeout.Duration {
		add("confirm.poll_interval must not exceed confirm.timeout")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		add("log.format %q must be console or json", c.Log.Format)
	}
	switch c.Events.Driver {
	case "none", "stdio":
	case "kafka":
		if len(c.Events.Brokers) == 0 {
			add("events.brokers is required for the kafka driver")
		}
	default:
		add("events.driver %q must be none, stdio or kafka", c.Events.Driver)
	}
	switch c.Journal.Driver {
	case "none", "file":
	case "postgres":
		if c.Journal.DSN == "" {
			add("journal.dsn is required for the postgres driver")
		}
	default:
		add("journal.driver %q must be none, file or postgres", c.Journal.Driver)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}

func ValidateAmount(a Amount) error {
	if !a.IsSet() {
		return fmt.Errorf("amount is required")
	}
	if !a.IsPositive() {
		return fmt.Errorf("amount must be greater than zero")
	}
	if a.LessThan(MinAmount) {
		return fmt.Errorf("amount %s is below the minimum %s", a.String(), MinAmount.String())
	}
	return nil
}

// Descriptor is the selected network with endpoint overrides applied.
func (c *Config) Descriptor() (networks.Descriptor, error) {
	d, err := networks.Lookup(c.Network)
	if err != nil {
		return networks.Descriptor{}, err
	}
	nc := c.networkConfig(d.Name)
	return d.WithEndpoints(nc.RPCURL, nc.ExplorerURL), nil
}

func (c *Config) Contracts() (Contracts, error) {
	d, err := networks.Lookup(c.Network)
	if err != nil {
		return Contracts{}, err
	}
	nc := c.networkConfig(d.Name)
	usdc := nc.USDCAddress
	if usdc == "" && d.Name == "LINEA" {
		usdc = lineaUSDC
	}
	out := Contracts{WrappedNative: d.WrappedNative}
	if out.USDC, err = parseAddress("networks."+d.Name+".usdc_address", usdc); err != nil {
		return Contracts{}, err
	}
	if out.Pool, err = parseAddress("networks."+d.Name+".pool_address", nc.PoolAddress); err != nil {
		return Contracts{}, err
	}
	if nc.WrappedNativeAddress != "" {
		if out.WrappedNative, err = parseAddress("networks."+d.Name+".wrapped_native_address", nc.WrappedNativeAddress); err != nil {
			return Contracts{}, err
		}
	}
	return out, nil
}

func (c *Config) SkipApproveIfAllowed() bool { return c.Tx.SkipApproveIfAllowed == nil || *c.Tx.SkipApproveIfAllowed }

func (c *Config) VerifyDeposit() bool { return c.Tx.VerifyDeposit == nil || *c.Tx.VerifyDeposit }

func (c *Config) networkConfig(name string) NetworkConfig {
	for k, v := range c.Networks {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return NetworkConfig{}
}

func parseAddress(field, v string) (common.Address, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return common.Address{}, fmt.Errorf("%s is required", field)
	}
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("%s %q is not a hex address", field, v)
	}
	return common.HexToAddress(v), nil
}

func tokenSupported(token string) bool {
	for _, t := range SupportedTokens {
		if strings.EqualFold(t, token) {
			return true
		}
	}
	return false
}

func isHexKey(s string) bool {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(s) != 64 {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}

func boolPtr(v bool) *bool { return &v }
