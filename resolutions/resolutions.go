// Package resolutions classifies the outputs of channel closing transactions.
// Cooperative closes are attributed to each party using our settled balance,
// force closes are decoded against the bolt03 commitment output templates
// using the witness that later spent each output.
package resolutions

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/chanclose/script"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// anchorSize is the value of anchor outputs on commitment transactions.
const anchorSize = btcutil.Amount(330)

var (
	// ErrTxLookup is returned when we cannot fetch the closing transaction
	// from the chain backend.
	ErrTxLookup = errors.New("closing transaction lookup failed")

	// ErrSpendLookup is returned when we cannot look up the spend of a
	// closing transaction's output.
	ErrSpendLookup = errors.New("output spend lookup failed")

	// ErrSpendUnknown may be returned by a spend lookup that could not
	// find out whether an output was spent, for example because its
	// spend has not confirmed yet. Outputs with an unknown spend are
	// classified as if they were unspent.
	ErrSpendUnknown = errors.New("output spend unknown")
)

// Config provides all the external functions required to classify the
// outputs of closing transactions.
type Config struct {
	// GetTransaction looks up a transaction by hash.
	GetTransaction func(ctx context.Context,
		hash *chainhash.Hash) (*wire.MsgTx, error)

	// LookupSpend looks up the spend of an output. It returns nil if the
	// output is unspent, and nil or an error matching ErrSpendUnknown if
	// its spend is not known. If it is not set, we do not decode p2wsh
	// outputs from their spends.
	LookupSpend func(ctx context.Context, outpoint wire.OutPoint,
		pkScript []byte, heightHint uint32) (*Spend, error)
}

// Classifier classifies the outputs of closing transactions.
type Classifier struct {
	cfg *Config
}

// NewClassifier returns a classifier using the config provided.
func NewClassifier(cfg *Config) *Classifier {
	return &Classifier{
		cfg: cfg,
	}
}

// resolveOptions holds the optional hints a caller may provide about a
// closing transaction.
type resolveOptions struct {
	settledBalance fn.Option[btcutil.Amount]
	heightHint     uint32
}

// ResolveOption is a functional option for Resolve.
type ResolveOption func(*resolveOptions)

// WithSettledBalance provides the balance that the close settled to our node,
// which is used to tell our cooperative close output apart from our peer's.
func WithSettledBalance(amt btcutil.Amount) ResolveOption {
	return func(o *resolveOptions) {
		o.settledBalance = fn.Some(amt)
	}
}

// WithHeightHint provides the height that the closing transaction confirmed
// at, which is used as a starting point for spend lookups.
func WithHeightHint(height uint32) ResolveOption {
	return func(o *resolveOptions) {
		o.heightHint = height
	}
}

// Resolve returns the resolutions of each classifiable output of a closing
// transaction, in output index order. Outputs that we cannot classify are
// omitted, so the result may be empty. Cooperative closes only have outputs
// paying each party, so we do not need to decode their scripts.
func (c *Classifier) Resolve(ctx context.Context, closeTxID *chainhash.Hash,
	cooperative bool, opts ...ResolveOption) ([]Resolution, error) {

	options := &resolveOptions{
		settledBalance: fn.None[btcutil.Amount](),
	}
	for _, opt := range opts {
		opt(options)
	}

	tx, err := c.cfg.GetTransaction(ctx, closeTxID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v: %w", ErrTxLookup, closeTxID, err)
	}

	if cooperative {
		return cooperativeResolutions(
			closeTxID, tx, options.settledBalance,
		), nil
	}

	var resolutions []Resolution
	for i, txOut := range tx.TxOut {
		outpoint := wire.OutPoint{
			Hash:  *closeTxID,
			Index: uint32(i),
		}

		resType, err := c.forceCloseOutput(
			ctx, outpoint, txOut, options.heightHint,
		)
		if err != nil {
			return nil, err
		}

		// Outputs that we cannot classify are not relevant to the
		// channel's settlement, so we skip them.
		if resType == ResolutionTypeUnknown {
			log.Debugf("Could not classify output: %v", outpoint)
			continue
		}

		resolutions = append(resolutions, Resolution{
			Type:     resType,
			Value:    btcutil.Amount(txOut.Value),
			OutPoint: outpoint,
		})
	}

	return resolutions, nil
}

// cooperativeResolutions classifies the outputs of a cooperative close. If we
// know our settled balance, the first output of that value is ours and every
// other output is our peer's. Without it, we can only tell that an output was
// part of the settlement.
func cooperativeResolutions(closeTxID *chainhash.Hash, tx *wire.MsgTx,
	settled fn.Option[btcutil.Amount]) []Resolution {

	var (
		resolutions []Resolution
		localFound  bool
	)

	for i, txOut := range tx.TxOut {
		outpoint := wire.OutPoint{
			Hash:  *closeTxID,
			Index: uint32(i),
		}

		if !isSettlementScript(txOut.PkScript) {
			log.Debugf("Skipping non-settlement cooperative "+
				"output: %v", outpoint)
			continue
		}

		value := btcutil.Amount(txOut.Value)
		resType := ResolutionTypeCooperative

		settled.WhenSome(func(amt btcutil.Amount) {
			if !localFound && amt != 0 && amt == value {
				localFound = true
				resType = ResolutionTypeToLocal

				return
			}

			resType = ResolutionTypeToRemote
		})

		resolutions = append(resolutions, Resolution{
			Type:     resType,
			Value:    value,
			OutPoint: outpoint,
		})
	}

	return resolutions
}

// isSettlementScript returns true if a script is one that a channel party can
// be paid to on close.
func isSettlementScript(pkScript []byte) bool {
	switch txscript.GetScriptClass(pkScript) {
	case txscript.WitnessV0PubKeyHashTy, txscript.WitnessV0ScriptHashTy,
		txscript.WitnessV1TaprootTy, txscript.PubKeyHashTy,
		txscript.ScriptHashTy:

		return true

	default:
		return false
	}
}

// forceCloseOutput classifies a single output of a commitment transaction.
// ResolutionTypeUnknown is returned for outputs we cannot classify.
func (c *Classifier) forceCloseOutput(ctx context.Context,
	outpoint wire.OutPoint, txOut *wire.TxOut,
	heightHint uint32) (ResolutionType, error) {

	value := btcutil.Amount(txOut.Value)

	switch txscript.GetScriptClass(txOut.PkScript) {
	// Legacy commitments pay the party that did not broadcast directly to
	// a p2wpkh output.
	case txscript.WitnessV0PubKeyHashTy:
		return ResolutionTypeToRemote, nil

	case txscript.WitnessV0ScriptHashTy:
		return c.scriptHashOutput(ctx, outpoint, txOut, heightHint)

	// We cannot decode taproot commitment outputs without their control
	// blocks, but anchors can still be identified by their value.
	case txscript.WitnessV1TaprootTy:
		return unspentType(value), nil

	default:
		return ResolutionTypeUnknown, nil
	}
}

// scriptHashOutput classifies a p2wsh commitment output using the witness of
// the input that spent it. Outputs that have not been spent are only
// classified if their value identifies them as anchors.
func (c *Classifier) scriptHashOutput(ctx context.Context,
	outpoint wire.OutPoint, txOut *wire.TxOut,
	heightHint uint32) (ResolutionType, error) {

	value := btcutil.Amount(txOut.Value)

	if c.cfg.LookupSpend == nil {
		return unspentType(value), nil
	}

	spend, err := c.cfg.LookupSpend(
		ctx, outpoint, txOut.PkScript, heightHint,
	)
	switch {
	case errors.Is(err, ErrSpendUnknown):
		log.Debugf("Spend of %v unknown, classifying by value: %v",
			outpoint, err)

		return unspentType(value), nil

	case err != nil:
		return ResolutionTypeUnknown, fmt.Errorf("%w: %v: %w",
			ErrSpendLookup, outpoint, err)
	}

	if spend == nil || int(spend.InputIndex) >= len(spend.Tx.TxIn) {
		return unspentType(value), nil
	}

	template, path, err := script.MatchWitness(
		spend.Tx.TxIn[spend.InputIndex].Witness, txOut.PkScript,
	)
	if err != nil {
		return ResolutionTypeUnknown, err
	}

	log.Tracef("Output %v matched template: %v, spend path: %v",
		outpoint, template, path)

	return spendResolution(template, path), nil
}

// spendResolution maps a commitment template and the path used to spend it
// to a resolution type.
func spendResolution(template script.Template,
	path script.SpendPath) ResolutionType {

	switch template {
	case script.TemplateToLocal:
		switch path {
		case script.SpendPathDelay:
			return ResolutionTypeToLocal

		case script.SpendPathRevocation:
			return ResolutionTypeBreachRemedy
		}

	case script.TemplateOfferedHtlc, script.TemplateReceivedHtlc:
		switch path {
		case script.SpendPathSuccess:
			return ResolutionTypeHtlcSuccess

		case script.SpendPathTimeout:
			return ResolutionTypeHtlcTimeout

		case script.SpendPathRevocation:
			return ResolutionTypeBreachRemedy
		}

	case script.TemplateToRemote:
		return ResolutionTypeToRemote

	case script.TemplateAnchor:
		return ResolutionTypeAnchor
	}

	return ResolutionTypeUnknown
}

// unspentType classifies an output that we have no spend for. Anchors are the
// only commitment output with a fixed value, so they are the only output we
// can identify this way.
func unspentType(value btcutil.Amount) ResolutionType {
	if value == anchorSize {
		return ResolutionTypeAnchor
	}

	return ResolutionTypeUnknown
}
