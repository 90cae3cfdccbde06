package chain

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"sync"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
)

// BitcoinClient is an interface which represents a connection to a bitcoin
// client.
type BitcoinClient interface {
	// GetTransaction looks up a transaction.
	GetTransaction(ctx context.Context,
		txHash *chainhash.Hash) (*wire.MsgTx, error)

	// IsUnspent returns true if an output is in the backend's utxo set,
	// including outputs created by mempool transactions.
	IsUnspent(ctx context.Context, outpoint wire.OutPoint) (bool, error)

	// Stop closes the connection to the backend.
	Stop()
}

// BitcoinConfig defines exported config options for the connection to the
// btcd/bitcoind backend.
type BitcoinConfig struct {
	Host         string `long:"host" description:"host:port of the bitcoind/btcd instance address"`
	User         string `long:"user" description:"bitcoind/btcd user name"`
	Password     string `long:"password" description:"bitcoind/btcd password"`
	HTTPPostMode bool   `long:"httppostmode" description:"Use HTTP POST mode? bitcoind only supports this mode"`
	UseTLS       bool   `long:"usetls" description:"Use TLS to connect? bitcoind only supports non-TLS connections"`
	TLSPath      string `long:"tlspath" description:"Path to btcd tls certificate, bitcoind only supports non-TLS connections"`
}

// DefaultConfig is the default config that we use to connect to bitcoind.
var DefaultConfig = &BitcoinConfig{
	Host:         "localhost:8332",
	UseTLS:       false,
	HTTPPostMode: true,
}

// rpcConn is the subset of rpcclient.Client's methods that we use.
type rpcConn interface {
	GetRawTransactionVerbose(txHash *chainhash.Hash) (*btcjson.TxRawResult,
		error)

	GetTxOut(txHash *chainhash.Hash, index uint32,
		mempool bool) (*btcjson.GetTxOutResult, error)

	Shutdown()
}

// bitcoinClient is a wrapper around the RPC connection to the chain backend
// and allows transactions to be queried.
type bitcoinClient struct {
	sync.Mutex

	rpcClient rpcConn

	// txCache holds a cache of confirmed transactions we have previously
	// looked up.
	txCache map[chainhash.Hash]*wire.MsgTx
}

// GetTransaction fetches a single transaction from the chain backend. The
// backend must have a transaction index for transactions that are not our
// node's own to be found.
func (c *bitcoinClient) GetTransaction(ctx context.Context,
	txHash *chainhash.Hash) (*wire.MsgTx, error) {

	c.Lock()
	cachedTx, ok := c.txCache[*txHash]
	c.Unlock()
	if ok {
		return cachedTx, nil
	}

	// Our rpc client does not take a context, so the best we can do is
	// not start queries once we have been cancelled.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	txDetail, err := c.rpcClient.GetRawTransactionVerbose(txHash)
	if err != nil {
		return nil, err
	}

	tx, err := decodeTx(txDetail.Hex)
	if err != nil {
		return nil, fmt.Errorf("could not decode %v: %w", txHash, err)
	}

	// Do not cache the transaction if it has not confirmed yet. If we do,
	// we won't ever lookup the confirmed transaction because it is already
	// cached.
	if txDetail.BlockHash == "" {
		return tx, nil
	}

	c.Lock()
	c.txCache[*txHash] = tx
	c.Unlock()

	return tx, nil
}

// IsUnspent returns true if an output is unspent. The backend returns no
// result for outputs that have been spent.
func (c *bitcoinClient) IsUnspent(ctx context.Context,
	outpoint wire.OutPoint) (bool, error) {

	if err := ctx.Err(); err != nil {
		return false, err
	}

	txOut, err := c.rpcClient.GetTxOut(&outpoint.Hash, outpoint.Index, true)
	if err != nil {
		return false, err
	}

	return txOut != nil, nil
}

// decodeTx deserializes a hex encoded transaction.
func decodeTx(txHex string) (*wire.MsgTx, error) {
	txBytes, err := hex.DecodeString(txHex)
	if err != nil {
		return nil, err
	}

	tx := &wire.MsgTx{}
	if err := tx.Deserialize(bytes.NewReader(txBytes)); err != nil {
		return nil, err
	}

	return tx, nil
}

// NewBitcoinClient attempts to connect to a bitcoin rpcclient with the config
// provided and returns a BitcoinClient wrapper which can be used to access the
// chain connection.
func NewBitcoinClient(cfg *BitcoinConfig) (BitcoinClient, error) {
	client, err := getBitcoinConn(cfg)
	if err != nil {
		return nil, err
	}

	return newBitcoinClient(client), nil
}

func newBitcoinClient(conn rpcConn) *bitcoinClient {
	return &bitcoinClient{
		rpcClient: conn,
		txCache:   make(map[chainhash.Hash]*wire.MsgTx),
	}
}

// getBitcoinConn gets a bitcoin rpc client from the config details provided.
func getBitcoinConn(cfg *BitcoinConfig) (*rpcclient.Client, error) {
	// In case we use TLS and a certificate argument is provided, we need to
	// read that file and provide it to the RPC connection as byte slice.
	var rpcCert []byte
	if cfg.UseTLS && cfg.TLSPath != "" {
		var err error
		rpcCert, err = os.ReadFile(cfg.TLSPath)
		if err != nil {
			return nil, err
		}
	}

	// Connect to bitcoin core RPC server using HTTP POST mode.
	connCfg := &rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Password,
		HTTPPostMode: cfg.HTTPPostMode,
		DisableTLS:   !cfg.UseTLS,
		Certificates: rpcCert,
	}

	// Notice the notification parameter is nil since notifications are
	// not supported in HTTP POST mode.
	return rpcclient.New(connCfg, nil)
}

// Stop closes the connection to the chain backend and should always be
// called on cleanup.
func (c *bitcoinClient) Stop() {
	c.rpcClient.Shutdown()
}
