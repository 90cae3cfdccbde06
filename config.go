package chanclose

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/jessevdk/go-flags"
	"github.com/lightninglabs/chanclose/chain"
	"github.com/lightninglabs/chanclose/lndwrap"
	"github.com/lightninglabs/chanclose/nodes"
	"github.com/lightningnetwork/lnd/lncfg"
)

const (
	defaultRPCPort     = "10009"
	defaultRPCHostPort = "localhost:" + defaultRPCPort
	defaultMacaroon    = "admin.macaroon"
	defaultNetwork     = nodes.DefaultNetwork
	defaultTLSCertName = "tls.cert"
	defaultNodesDir    = "nodes"
	defaultDebugLevel  = "info"

	// DefaultConfigFilename is the name of our config file in our app
	// data dir.
	DefaultConfigFilename = "chanclose.conf"
)

var (
	// DefaultDataDir is the directory that holds our config file and node
	// profiles.
	DefaultDataDir = btcutil.AppDataDir("chanclose", false)

	// DefaultConfigFile is the config file that we read if none is
	// specified.
	DefaultConfigFile = filepath.Join(DefaultDataDir, DefaultConfigFilename)

	defaultLndDir      = btcutil.AppDataDir("lnd", false)
	defaultTLSCertPath = filepath.Join(defaultLndDir, defaultTLSCertName)

	// errNoSpendTimeout is returned if our spend timeout is not positive.
	errNoSpendTimeout = errors.New("spendtimeout must be positive")
)

// Config holds the settings used to connect to our default node and its
// chain backend.
type Config struct {
	// RPCServer is host:port that lnd's RPC server is listening on.
	RPCServer string `long:"rpcserver" description:"host:port that LND is listening for RPC connections on"`

	// TLSCertPath is the path to the tls cert of our default node.
	TLSCertPath string `long:"tlscertpath" description:"Path to LND's TLS cert"`

	// MacaroonPath is the path to the macaroon for our default node. If it
	// is not set, lnd's admin macaroon for our network is used.
	MacaroonPath string `long:"macaroonpath" description:"Path to the macaroon to use, defaults to lnd's admin macaroon for the network"`

	// Network is the network our default node is running on.
	Network string `long:"network" description:"The network lnd is running on" choice:"regtest" choice:"testnet" choice:"mainnet" choice:"simnet" choice:"signet"`

	// NodesDir is the directory that holds named node profiles.
	NodesDir string `long:"nodesdir" description:"Directory containing named node profiles, each in <nodesdir>/<name>/node.conf"`

	// DebugLevel is the log level, either a single level for all
	// subsystems or a list of <subsystem>=<level> pairs.
	DebugLevel string `long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems"`

	// SpendTimeout is the amount of time we wait for lnd to notify us of
	// a closing output's spend.
	SpendTimeout time.Duration `long:"spendtimeout" description:"The amount of time to wait for a spend notification from lnd. Valid time units are {s, m, h}."`

	// Bitcoin holds the settings for our chain backend.
	Bitcoin *chain.BitcoinConfig `group:"bitcoin" namespace:"bitcoin"`
}

// DefaultConfig returns a config with all of our default values set.
func DefaultConfig() *Config {
	bitcoinCfg := *chain.DefaultConfig

	return &Config{
		RPCServer:    defaultRPCHostPort,
		TLSCertPath:  defaultTLSCertPath,
		Network:      defaultNetwork,
		NodesDir:     filepath.Join(DefaultDataDir, defaultNodesDir),
		DebugLevel:   defaultDebugLevel,
		SpendTimeout: lndwrap.DefaultSpendTimeout,
		Bitcoin:      &bitcoinCfg,
	}
}

// LoadConfig starts with a default config, applies the config file provided
// and then the command line arguments given. If no config file is given, our
// default config file is read if it exists.
func LoadConfig(configFile string, args []string) (*Config, error) {
	config := DefaultConfig()

	if err := readConfigFile(config, configFile); err != nil {
		return nil, err
	}

	// Command line options take precedence over our config file.
	if _, err := flags.NewParser(config, flags.None).ParseArgs(
		args,
	); err != nil {
		return nil, err
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// readConfigFile parses an ini config file into our config.
func readConfigFile(config *Config, configFile string) error {
	path := configFile
	if path == "" {
		path = DefaultConfigFile
	}
	path = lncfg.CleanAndExpandPath(path)

	if _, err := os.Stat(path); err != nil {
		// Our default config file is optional, but one that was
		// specified must exist.
		if os.IsNotExist(err) && configFile == "" {
			return nil
		}

		return err
	}

	parser := flags.NewParser(config, flags.None)
	if err := flags.NewIniParser(parser).ParseFile(path); err != nil {
		return fmt.Errorf("could not read config file %v: %w", path,
			err)
	}

	return nil
}

// validate checks our config, expanding paths and filling in settings that
// depend on other settings.
func (c *Config) validate() error {
	if c.SpendTimeout <= 0 {
		return errNoSpendTimeout
	}

	if err := validateDebugLevel(c.DebugLevel); err != nil {
		return err
	}

	c.TLSCertPath = lncfg.CleanAndExpandPath(c.TLSCertPath)
	c.NodesDir = lncfg.CleanAndExpandPath(c.NodesDir)

	if c.MacaroonPath == "" {
		c.MacaroonPath = filepath.Join(
			defaultLndDir, "data", "chain", "bitcoin", c.Network,
			defaultMacaroon,
		)
	}
	c.MacaroonPath = lncfg.CleanAndExpandPath(c.MacaroonPath)

	if c.Bitcoin.TLSPath != "" {
		c.Bitcoin.TLSPath = lncfg.CleanAndExpandPath(c.Bitcoin.TLSPath)
	}

	return nil
}

// defaultCredentials returns the credentials for our default node.
func (c *Config) defaultCredentials() *nodes.Credentials {
	return &nodes.Credentials{
		RPCServer:    c.RPCServer,
		TLSCertPath:  c.TLSCertPath,
		MacaroonPath: c.MacaroonPath,
		Network:      c.Network,
	}
}
