package chanclose

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestLoadConfig tests the precedence of our defaults, config file and
// command line arguments.
func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "chanclose.conf")

	require.NoError(t, os.WriteFile(configFile, []byte(`
[Application Options]
rpcserver=file:10009
network=regtest
spendtimeout=30s

[bitcoin]
bitcoin.host=bitcoind:18443
bitcoin.user=user
`), 0600))

	cfg, err := LoadConfig(configFile, []string{
		"--rpcserver=args:10009", "--nodesdir=" + dir,
	})
	require.NoError(t, err)

	// Command line arguments override our config file.
	require.Equal(t, "args:10009", cfg.RPCServer)
	require.Equal(t, dir, cfg.NodesDir)

	// Our config file overrides our defaults.
	require.Equal(t, "regtest", cfg.Network)
	require.Equal(t, 30*time.Second, cfg.SpendTimeout)
	require.Equal(t, "bitcoind:18443", cfg.Bitcoin.Host)
	require.Equal(t, "user", cfg.Bitcoin.User)

	// Settings we did not change keep their defaults.
	require.True(t, cfg.Bitcoin.HTTPPostMode)
	require.Equal(t, defaultDebugLevel, cfg.DebugLevel)

	// Our macaroon defaults to lnd's admin macaroon for our network.
	require.Equal(t, filepath.Join(
		defaultLndDir, "data", "chain", "bitcoin", "regtest",
		defaultMacaroon,
	), cfg.MacaroonPath)

	creds := cfg.defaultCredentials()
	require.Equal(t, "args:10009", creds.RPCServer)
	require.Equal(t, cfg.MacaroonPath, creds.MacaroonPath)
	require.Equal(t, "regtest", creds.Network)
}

// TestLoadConfigErrors tests failures loading our config.
func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()

	// A config file that was specified must exist.
	_, err := LoadConfig(filepath.Join(dir, "missing.conf"), nil)
	require.Error(t, err)

	invalidFile := filepath.Join(dir, "invalid.conf")
	require.NoError(t, os.WriteFile(
		invalidFile, []byte("unknownoption=1\n"), 0600,
	))
	_, err = LoadConfig(invalidFile, nil)
	require.Error(t, err)

	emptyFile := filepath.Join(dir, "empty.conf")
	require.NoError(t, os.WriteFile(emptyFile, nil, 0600))

	_, err = LoadConfig(emptyFile, []string{"--spendtimeout=0s"})
	require.ErrorIs(t, err, errNoSpendTimeout)

	_, err = LoadConfig(emptyFile, []string{"--debuglevel=verbose"})
	require.Error(t, err)

	_, err = LoadConfig(emptyFile, []string{"--debuglevel=info,XXXX=debug"})
	require.Error(t, err)

	_, err = LoadConfig(emptyFile, []string{"--network=litecoin"})
	require.Error(t, err)

	_, err = LoadConfig(emptyFile, []string{"--unknown"})
	require.Error(t, err)
}
