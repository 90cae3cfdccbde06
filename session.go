package chanclose

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/chanclose/chain"
	"github.com/lightninglabs/chanclose/closes"
	"github.com/lightninglabs/chanclose/fees"
	"github.com/lightninglabs/chanclose/lndwrap"
	"github.com/lightninglabs/chanclose/nodes"
	"github.com/lightninglabs/chanclose/resolutions"
	"github.com/lightninglabs/lndclient"
	"github.com/lightningnetwork/lnd/chainntnfs"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// session is a connection to a lnd node and its chain backend, which lives
// for the duration of a single report.
type session struct {
	lnd        lndclient.LightningClient
	bitcoin    chain.BitcoinClient
	classifier *resolutions.Classifier

	// cleanup releases our connections.
	cleanup func()
}

// A compile time check that session implements closes.Session.
var _ closes.Session = (*session)(nil)

// openSession connects to the node described by a set of credentials, and
// our chain backend.
func openSession(ctx context.Context, cfg *Config,
	creds *nodes.Credentials) (closes.Session, error) {

	bitcoin, err := chain.NewBitcoinClient(cfg.Bitcoin)
	if err != nil {
		return nil, fmt.Errorf("could not connect to chain backend: "+
			"%w", err)
	}

	lnd, err := lndclient.NewLndServices(&lndclient.LndServicesConfig{
		LndAddress:         creds.RPCServer,
		Network:            lndclient.Network(creds.Network),
		CustomMacaroonPath: creds.MacaroonPath,
		TLSPath:            creds.TLSCertPath,
		CallerCtx:          ctx,
	})
	if err != nil {
		bitcoin.Stop()

		return nil, fmt.Errorf("could not connect to %v: %w", creds,
			err)
	}

	log.Infof("Connected to %v at %v", creds, creds.RPCServer)

	spendCfg := &lndwrap.SpendConfig{
		RegisterSpend: func(ctx context.Context, outpoint *wire.OutPoint,
			pkScript []byte, heightHint int32) (
			chan *chainntnfs.SpendDetail, chan error, error) {

			return lnd.ChainNotifier.RegisterSpendNtfn(
				ctx, outpoint, pkScript, heightHint,
			)
		},
		IsUnspent: bitcoin.IsUnspent,
		Timeout:   cfg.SpendTimeout,
	}

	return newSession(lnd.Client, bitcoin, spendCfg, func() {
		lnd.Close()
		bitcoin.Stop()
	}), nil
}

// newSession creates a session using the clients provided.
func newSession(lnd lndclient.LightningClient, bitcoin chain.BitcoinClient,
	spendCfg *lndwrap.SpendConfig, cleanup func()) *session {

	var lookupSpend func(context.Context, wire.OutPoint, []byte,
		uint32) (*resolutions.Spend, error)

	if spendCfg != nil {
		lookupSpend = func(ctx context.Context, outpoint wire.OutPoint,
			pkScript []byte, heightHint uint32) (*resolutions.Spend,
			error) {

			return lndwrap.LookupSpend(
				ctx, spendCfg, outpoint, pkScript, heightHint,
			)
		}
	}

	return &session{
		lnd:     lnd,
		bitcoin: bitcoin,
		classifier: resolutions.NewClassifier(&resolutions.Config{
			GetTransaction: bitcoin.GetTransaction,
			LookupSpend:    lookupSpend,
		}),
		cleanup: cleanup,
	}
}

// ClosedChannels returns our node's closed channels.
func (s *session) ClosedChannels(ctx context.Context) ([]closes.ClosedChannel,
	error) {

	return lndwrap.ClosedChannels(ctx, s.lnd)
}

// CurrentHeight returns our node's best block height.
func (s *session) CurrentHeight(ctx context.Context) (uint32, error) {
	return lndwrap.CurrentHeight(ctx, s.lnd)
}

// ResolveClose classifies the outputs of a channel's closing transaction.
// Our settled balance is only used for cooperative closes, where it is the
// only way to tell our output apart from our peer's.
func (s *session) ResolveClose(ctx context.Context,
	channel *closes.ClosedChannel) ([]resolutions.Resolution, error) {

	cooperative := channel.CloseType == closes.CloseTypeCooperative

	opts := []resolutions.ResolveOption{
		resolutions.WithHeightHint(channel.CloseHeight),
	}
	if cooperative {
		opts = append(
			opts, resolutions.WithSettledBalance(
				channel.SettledBalance,
			),
		)
	}

	return s.classifier.Resolve(
		ctx, &channel.ClosingTxHash, cooperative, opts...,
	)
}

// CloseFee calculates the fee paid by a closing transaction. This requires
// our backend to look up the transaction's inputs, which it may not be able
// to do without a transaction index, so failure to calculate a fee is not
// an error.
func (s *session) CloseFee(ctx context.Context,
	txid *chainhash.Hash) (fn.Option[btcutil.Amount], error) {

	fee, err := fees.CalculateFee(ctx, s.bitcoin.GetTransaction, txid)
	switch {
	case err == nil:
		return fn.Some(fee), nil

	case ctx.Err() != nil:
		return fn.None[btcutil.Amount](), ctx.Err()

	default:
		log.Warnf("Could not calculate fee for %v: %v", txid, err)
		return fn.None[btcutil.Amount](), nil
	}
}

// Close releases our session's connections.
func (s *session) Close() {
	if s.cleanup != nil {
		s.cleanup()
	}
}
