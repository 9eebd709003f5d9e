package config

import (
	"fmt"
	"math/big"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/maci-voter/artifacts"
	"github.com/vocdoni/maci-voter/service"
	"github.com/vocdoni/maci-voter/voter"
	"github.com/vocdoni/maci-voter/web3"
)

// Database backends.
const (
	DBTypePebble = "pebble"
	DBTypeMemory = "memory"
)

// Config holds the application configuration
type Config struct {
	Web3      Web3Config      `mapstructure:"web3"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	DB        DBConfig        `mapstructure:"db"`
	API       APIConfig       `mapstructure:"api"`
	Log       LogConfig       `mapstructure:"log"`
	Pollers   PollersConfig   `mapstructure:"pollers"`
	Identity  IdentityConfig  `mapstructure:"identity"`
	Voter     VoterConfig     `mapstructure:"voter"`
	Datadir   string          `mapstructure:"datadir"`
}

// Web3Config holds Ethereum-related configuration
type Web3Config struct {
	PrivKey    string   `mapstructure:"privkey"`
	Network    string   `mapstructure:"network"`
	RPC        []string `mapstructure:"rpc"`
	ChainID    uint64   `mapstructure:"chainid"`
	MACI       string   `mapstructure:"maci"`
	Poll       string   `mapstructure:"poll"`
	Semaphore  string   `mapstructure:"semaphore"`
	GroupID    string   `mapstructure:"groupid"`
	StartBlock uint64   `mapstructure:"startblock"`
}

// ArtifactsConfig holds the circuit artifacts configuration
type ArtifactsConfig struct {
	BaseURL        string        `mapstructure:"baseurl"`
	Dir            string        `mapstructure:"dir"`
	Testing        bool          `mapstructure:"testing"`
	StateTreeDepth uint8         `mapstructure:"statetreedepth"`
	CheckHashes    bool          `mapstructure:"checkhashes"`
	Timeout        time.Duration `mapstructure:"timeout"`
	S3             S3Config      `mapstructure:"s3"`
}

// S3Config holds the optional S3 mirror of the artifacts
type S3Config struct {
	Enabled   bool   `mapstructure:"enabled"`
	HostBase  string `mapstructure:"hostbase"`
	AccessKey string `mapstructure:"accesskey"`
	SecretKey string `mapstructure:"secretkey"`
	Space     string `mapstructure:"space"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
}

// DBConfig holds the local store configuration. A non empty passphrase
// encrypts every stored value.
type DBConfig struct {
	Type       string `mapstructure:"type"`
	Path       string `mapstructure:"path"`
	Passphrase string `mapstructure:"passphrase"`
}

// APIConfig holds the API-specific configuration
type APIConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	DisableLogging bool   `mapstructure:"disablelogging"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Output string `mapstructure:"output"`
}

// PollersConfig holds the refresh interval of every poller
type PollersConfig struct {
	Status     time.Duration `mapstructure:"status"`
	Membership time.Duration `mapstructure:"membership"`
	Balance    time.Duration `mapstructure:"balance"`
}

// IdentityConfig holds the identity derivation configuration
type IdentityConfig struct {
	Message string `mapstructure:"message"`
}

// VoterConfig holds the workflow tuning
type VoterConfig struct {
	StepTimeout time.Duration `mapstructure:"steptimeout"`
}

// ApplyNetwork fills every unset value that has a preset for the configured
// network.
func (c *Config) ApplyNetwork() error {
	preset, ok := Networks[c.Web3.Network]
	if !ok {
		return fmt.Errorf("invalid network %s, available networks: %v", c.Web3.Network, AvailableNetworks)
	}
	if len(c.Web3.RPC) == 0 {
		c.Web3.RPC = slices.Clone(preset.RPCs)
	}
	if c.Web3.ChainID == 0 {
		c.Web3.ChainID = preset.ChainID
	}
	if c.Web3.MACI == "" {
		c.Web3.MACI = preset.MACI
	}
	if c.Web3.Poll == "" {
		c.Web3.Poll = preset.Poll
	}
	if c.Web3.Semaphore == "" {
		c.Web3.Semaphore = preset.Semaphore
	}
	if c.Web3.StartBlock == 0 {
		c.Web3.StartBlock = preset.StartBlock
	}
	if c.Artifacts.BaseURL == "" {
		c.Artifacts.BaseURL = preset.ArtifactsBaseURL
	}
	return nil
}

// Validate checks the values every command needs.
func (c *Config) Validate() error {
	if c.Web3.MACI == "" {
		return fmt.Errorf("MACI contract address is required (use --web3.maci or MACI_WEB3_MACI)")
	}
	for name, addr := range map[string]string{
		"maci":      c.Web3.MACI,
		"poll":      c.Web3.Poll,
		"semaphore": c.Web3.Semaphore,
	} {
		if addr != "" && !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid %s address %q", name, addr)
		}
	}
	if c.Web3.GroupID != "" {
		if _, ok := new(big.Int).SetString(c.Web3.GroupID, 10); !ok {
			return fmt.Errorf("invalid semaphore group id %q", c.Web3.GroupID)
		}
	}
	if len(c.Web3.RPC) == 0 {
		return fmt.Errorf("at least one web3 rpc endpoint is required")
	}
	switch c.DB.Type {
	case DBTypePebble, DBTypeMemory:
	default:
		return fmt.Errorf("invalid db type %q, use %s or %s", c.DB.Type, DBTypePebble, DBTypeMemory)
	}
	if err := c.PollerIntervals().Validate(); err != nil {
		return fmt.Errorf("pollers: %w", err)
	}
	if c.Artifacts.BaseURL == "" && !c.Artifacts.S3.Enabled {
		return fmt.Errorf("no artifacts source configured")
	}
	return nil
}

// Addresses returns the contract addresses for web3.
func (c *Config) Addresses() web3.Addresses {
	return web3.Addresses{
		MACI:       common.HexToAddress(c.Web3.MACI),
		Poll:       common.HexToAddress(c.Web3.Poll),
		Semaphore:  common.HexToAddress(c.Web3.Semaphore),
		StartBlock: c.Web3.StartBlock,
	}
}

// VoterConfig returns the configuration of the voter flows. Unset
// addresses are left as the zero address, which the flows report as not
// ready.
func (c *Config) VoterConfig() voter.Config {
	addrs := c.Addresses()
	vc := voter.Config{
		MACI:           addrs.MACI,
		Poll:           addrs.Poll,
		Semaphore:      addrs.Semaphore,
		StateTreeDepth: c.Artifacts.StateTreeDepth,
		Testing:        c.Artifacts.Testing,
		StepTimeout:    c.Voter.StepTimeout,
	}
	if c.Web3.GroupID != "" {
		vc.GroupID, _ = new(big.Int).SetString(c.Web3.GroupID, 10)
	}
	return vc
}

// ArtifactsFetcherConfig returns the configuration of the artifacts cache.
func (c *Config) ArtifactsFetcherConfig() artifacts.Config {
	return artifacts.Config{Dir: c.Artifacts.Dir, CheckHashes: c.Artifacts.CheckHashes}
}

// S3SourceConfig returns the configuration of the S3 mirror.
func (c *Config) S3SourceConfig() artifacts.S3Config {
	s := c.Artifacts.S3
	return artifacts.S3Config{
		Enabled:   s.Enabled,
		HostBase:  s.HostBase,
		AccessKey: s.AccessKey,
		SecretKey: s.SecretKey,
		Space:     s.Space,
		Bucket:    s.Bucket,
		Region:    s.Region,
	}
}

// PollerIntervals returns the poller refresh intervals.
func (c *Config) PollerIntervals() service.PollerIntervals {
	return service.PollerIntervals{
		Status:     c.Pollers.Status,
		Membership: c.Pollers.Membership,
		Balance:    c.Pollers.Balance,
	}
}

// Redacted returns a copy of c safe to log.
func (c Config) Redacted() Config {
	redact := func(s string) string {
		if s == "" {
			return ""
		}
		return strings.Repeat("*", 8)
	}
	c.Web3.PrivKey = redact(c.Web3.PrivKey)
	c.DB.Passphrase = redact(c.DB.Passphrase)
	c.Artifacts.S3.SecretKey = redact(c.Artifacts.S3.SecretKey)
	return c
}
