// Package nodes loads the credentials required to connect to a lnd node,
// either the default node from our main config or a named node profile.
//
// Named profiles live in their own directory under the nodes dir:
//
//	<nodesdir>/<name>/node.conf
//
// The profile is an ini file with the same option names as our main config.
// Relative paths in a profile are resolved against the profile's directory.
package nodes

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jessevdk/go-flags"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/lncfg"
	"gopkg.in/macaroon.v2"
)

const (
	// ProfileFilename is the name of the config file in a node profile's
	// directory.
	ProfileFilename = "node.conf"

	// DefaultNetwork is the network that we use if a profile does not
	// specify one.
	DefaultNetwork = "mainnet"
)

var (
	// ErrUnknownNode is returned when a named node has no profile.
	ErrUnknownNode = errors.New("unknown node")

	// ErrInvalidName is returned when a node name cannot be used as a
	// directory name.
	ErrInvalidName = errors.New("invalid node name")

	// ErrNoNodesDir is returned when a named node is requested but we do
	// not have a nodes directory configured.
	ErrNoNodesDir = errors.New("no nodes directory configured")

	// ErrNoRPCServer is returned when a node has no rpc server set.
	ErrNoRPCServer = errors.New("rpcserver required")

	// ErrNoMacaroon is returned when a node has no macaroon set.
	ErrNoMacaroon = errors.New("macaroonpath required")

	// ErrInvalidMacaroon is returned when a node's macaroon cannot be
	// decoded.
	ErrInvalidMacaroon = errors.New("invalid macaroon")

	// ErrUnknownNetwork is returned when a node is configured with a
	// network we do not know.
	ErrUnknownNetwork = errors.New("unknown network")
)

// networks is the set of networks that lnd can run on.
var networks = map[string]struct{}{
	"mainnet": {},
	"testnet": {},
	"regtest": {},
	"simnet":  {},
	"signet":  {},
}

// Credentials holds everything we need to open a connection to a lnd node.
type Credentials struct {
	// Name is the name of the node's profile, or empty for the default
	// node.
	Name string `no-flag:"true"`

	// RPCServer is the host:port of lnd's rpc server.
	RPCServer string `long:"rpcserver" description:"host:port that lnd is listening for RPC connections on"`

	// TLSCertPath is the path to lnd's tls certificate.
	TLSCertPath string `long:"tlscertpath" description:"Path to lnd's TLS cert"`

	// MacaroonPath is the path to the macaroon we use to authenticate.
	MacaroonPath string `long:"macaroonpath" description:"Path to the macaroon to use"`

	// Network is the bitcoin network the node is running on.
	Network string `long:"network" description:"The network the node is running on"`
}

// String returns the name we use for a node in logs.
func (c *Credentials) String() string {
	if c.Name == "" {
		return "default node"
	}

	return fmt.Sprintf("node %v", c.Name)
}

// Config holds the settings our store loads credentials with.
type Config struct {
	// Default is the node that we use when no node is named.
	Default *Credentials

	// NodesDir is the directory that holds named node profiles.
	NodesDir string
}

// Store provides credentials for the default node or named node profiles.
type Store struct {
	cfg *Config
}

// NewStore returns a credential store using the config provided.
func NewStore(cfg *Config) *Store {
	return &Store{
		cfg: cfg,
	}
}

// Credentials returns validated credentials for the node named, or the
// default node if no name is provided.
func (s *Store) Credentials(node fn.Option[string]) (*Credentials, error) {
	name := node.UnwrapOr("")
	if name == "" {
		if s.cfg.Default == nil {
			return nil, fmt.Errorf("%w: no default node", ErrUnknownNode)
		}

		creds := *s.cfg.Default
		if err := validate(&creds); err != nil {
			return nil, fmt.Errorf("%v: %w", creds.String(), err)
		}

		return &creds, nil
	}

	creds, err := s.loadProfile(name)
	if err != nil {
		return nil, fmt.Errorf("node %v: %w", name, err)
	}

	return creds, nil
}

// loadProfile reads and validates a named node profile.
func (s *Store) loadProfile(name string) (*Credentials, error) {
	if s.cfg.NodesDir == "" {
		return nil, ErrNoNodesDir
	}

	if err := validateName(name); err != nil {
		return nil, err
	}

	dir := filepath.Join(lncfg.CleanAndExpandPath(s.cfg.NodesDir), name)
	path := filepath.Join(dir, ProfileFilename)

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrUnknownNode
		}

		return nil, err
	}

	creds := &Credentials{
		Name:    name,
		Network: DefaultNetwork,
	}

	parser := flags.NewParser(creds, flags.IgnoreUnknown)
	if err := flags.NewIniParser(parser).ParseFile(path); err != nil {
		return nil, fmt.Errorf("could not parse %v: %w", path, err)
	}

	creds.TLSCertPath = resolvePath(dir, creds.TLSCertPath)
	creds.MacaroonPath = resolvePath(dir, creds.MacaroonPath)

	if err := validate(creds); err != nil {
		return nil, err
	}

	log.Debugf("Loaded profile for %v from %v", creds, path)

	return creds, nil
}

// validateName checks that a node name refers to a single directory inside
// our nodes dir.
func validateName(name string) error {
	if name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) {

		return fmt.Errorf("%w: %v", ErrInvalidName, name)
	}

	return nil
}

// resolvePath expands a profile path, resolving relative paths against the
// profile's directory.
func resolvePath(dir, path string) string {
	if path == "" {
		return ""
	}

	path = lncfg.CleanAndExpandPath(path)
	if filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(dir, path)
}

// validate checks that a set of credentials is complete, and that its
// macaroon can be decoded. We do not check the tls cert here, because lnd
// may be reached without one.
func validate(creds *Credentials) error {
	if creds.RPCServer == "" {
		return ErrNoRPCServer
	}

	if creds.Network == "" {
		creds.Network = DefaultNetwork
	}

	if _, ok := networks[creds.Network]; !ok {
		return fmt.Errorf("%w: %v", ErrUnknownNetwork, creds.Network)
	}

	if creds.MacaroonPath == "" {
		return ErrNoMacaroon
	}

	macBytes, err := os.ReadFile(creds.MacaroonPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMacaroon, err)
	}

	mac := &macaroon.Macaroon{}
	if err := mac.UnmarshalBinary(macBytes); err != nil {
		return fmt.Errorf("%w: %v: %w", ErrInvalidMacaroon,
			creds.MacaroonPath, err)
	}

	return nil
}
