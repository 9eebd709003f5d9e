package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/vocdoni/maci-voter/config"
	"github.com/vocdoni/maci-voter/log"
)

const (
	defaultNetwork          = "sep"
	defaultAPIHost          = "0.0.0.0"
	defaultAPIPort          = 9095
	defaultLogLevel         = "info"
	defaultLogOutput        = "stdout"
	defaultDatadir          = ".maci-voter" // Will be prefixed with user's home directory
	defaultArtifactsTimeout = 20 * time.Minute
	defaultStepTimeout      = 10 * time.Minute
	defaultStatusInterval   = 10 * time.Second
	defaultMemberInterval   = 30 * time.Second
	defaultBalanceInterval  = 15 * time.Second
	defaultRetries          = 3
)

// Version is the build version, set at build time with -ldflags
var Version = "dev"

// loadConfig loads configuration from flags, environment variables, and defaults
func loadConfig(args []string) (*config.Config, *flag.FlagSet, error) {
	v := viper.New()

	userHomeDir, err := os.UserHomeDir()
	if err != nil {
		userHomeDir = "."
	}
	defaultDatadirPath := filepath.Join(userHomeDir, defaultDatadir)

	v.SetDefault("web3.network", defaultNetwork)
	v.SetDefault("web3.rpc", []string{})
	v.SetDefault("api.host", defaultAPIHost)
	v.SetDefault("api.port", defaultAPIPort)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.output", defaultLogOutput)
	v.SetDefault("datadir", defaultDatadirPath)
	v.SetDefault("db.type", config.DBTypePebble)
	v.SetDefault("artifacts.checkhashes", true)
	v.SetDefault("artifacts.timeout", defaultArtifactsTimeout)
	v.SetDefault("artifacts.s3.region", "us-east-1")
	v.SetDefault("pollers.status", defaultStatusInterval)
	v.SetDefault("pollers.membership", defaultMemberInterval)
	v.SetDefault("pollers.balance", defaultBalanceInterval)
	v.SetDefault("voter.steptimeout", defaultStepTimeout)

	fs := flag.NewFlagSet("maci-voter", flag.ContinueOnError)
	fs.StringP("web3.privkey", "k", "", "private key of the wallet that signs up, joins and votes (required)")
	fs.StringP("web3.network", "n", defaultNetwork, fmt.Sprintf("network to use %v", config.AvailableNetworks))
	fs.StringSliceP("web3.rpc", "w", []string{}, "web3 rpc endpoint(s), comma-separated")
	fs.Uint64("web3.chainid", 0, "chain id (overrides network default)")
	fs.String("web3.maci", "", "MACI contract address (overrides network default)")
	fs.String("web3.poll", "", "poll contract address")
	fs.String("web3.semaphore", "", "semaphore contract address")
	fs.String("web3.groupid", "", "semaphore group id")
	fs.Uint64("web3.startblock", 0, "first block scanned for sign up logs")
	fs.String("artifacts.baseurl", "", "base URL of the circuit artifacts (overrides network default)")
	fs.String("artifacts.dir", "", "artifacts cache directory (default <datadir>/artifacts)")
	fs.Bool("artifacts.testing", false, "use the test build of the circuits")
	fs.Uint8("artifacts.statetreedepth", 0, "state tree depth (read from the MACI contract when zero)")
	fs.Bool("artifacts.checkhashes", true, "check artifacts against the release manifest")
	fs.Duration("artifacts.timeout", defaultArtifactsTimeout, "timeout of the artifacts download on serve")
	fs.Bool("artifacts.s3.enabled", false, "use an S3 mirror of the artifacts before the base URL")
	fs.String("artifacts.s3.hostbase", "", "S3 endpoint")
	fs.String("artifacts.s3.accesskey", "", "S3 access key")
	fs.String("artifacts.s3.secretkey", "", "S3 secret key")
	fs.String("artifacts.s3.space", "", "S3 space (bucket name)")
	fs.String("artifacts.s3.bucket", "", "S3 key prefix")
	fs.String("artifacts.s3.region", "us-east-1", "S3 region")
	fs.String("db.type", config.DBTypePebble, "local store backend (pebble or memory)")
	fs.String("db.path", "", "local store path (default <datadir>/db)")
	fs.String("db.passphrase", "", "encrypt the local store with this passphrase")
	fs.StringP("api.host", "a", defaultAPIHost, "API host")
	fs.IntP("api.port", "p", defaultAPIPort, "API port")
	fs.Bool("api.disablelogging", false, "disable API request logging")
	fs.StringP("log.level", "l", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringP("log.output", "o", defaultLogOutput, "log output (stdout, stderr or filepath)")
	fs.Duration("pollers.status", defaultStatusInterval, "poll status refresh interval (3s to 30s)")
	fs.Duration("pollers.membership", defaultMemberInterval, "group membership refresh interval (3s to 30s)")
	fs.Duration("pollers.balance", defaultBalanceInterval, "wallet balance refresh interval (3s to 30s)")
	fs.String("identity.message", "", "message signed to derive the anonymous identity")
	fs.Duration("voter.steptimeout", defaultStepTimeout, "timeout of every workflow step")
	fs.StringP("datadir", "d", defaultDatadirPath, "data directory for database and artifact files")
	fs.Int("retries", defaultRetries, "automatic retries of a recoverable workflow failure")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "maci-voter v%s\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: maci-voter [flags] <command> [args]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  register                 sign up the wallet voting key on MACI\n")
		fmt.Fprintf(os.Stderr, "  join                     prove the sign up and join the poll\n")
		fmt.Fprintf(os.Stderr, "  vote <option> <weight>   publish an encrypted vote\n")
		fmt.Fprintf(os.Stderr, "  status                   print the poll status and wallet state\n")
		fmt.Fprintf(os.Stderr, "  serve                    start the HTTP API and the pollers\n")
		fmt.Fprintf(os.Stderr, "  keys export              print the voting key (macisk.)\n")
		fmt.Fprintf(os.Stderr, "  keys import <macisk.>    store an exported voting key\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment variables are also available with the same name as flags,\n")
		fmt.Fprintf(os.Stderr, "  except for dots (.) which are replaced by underscores (_).\n")
		fmt.Fprintf(os.Stderr, "  For example, MACI_WEB3_PRIVKEY or MACI_DB_PASSPHRASE\n")
	}

	fs.SortFlags = false
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	v.SetEnvPrefix("MACI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, nil, fmt.Errorf("error binding flags: %w", err)
	}

	cfg := &config.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if cfg.Artifacts.Dir == "" {
		cfg.Artifacts.Dir = filepath.Join(cfg.Datadir, "artifacts")
	}
	if cfg.DB.Path == "" {
		cfg.DB.Path = filepath.Join(cfg.Datadir, "db")
	}
	return cfg, fs, nil
}

// validateConfig validates the loaded configuration
func validateConfig(cfg *config.Config) error {
	if cfg.Web3.PrivKey == "" {
		return fmt.Errorf("private key is required (use --web3.privkey flag or MACI_WEB3_PRIVKEY environment variable)")
	}
	if err := cfg.ApplyNetwork(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log.Debugw("configuration loaded", "config", fmt.Sprintf("%+v", cfg.Redacted()))
	return nil
}
