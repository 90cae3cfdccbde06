// Package fees calculates the on chain fees paid by a transaction.
package fees

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// ErrMissingPrevOut is returned when a transaction spends an output index that
// its previous transaction does not have.
var ErrMissingPrevOut = errors.New("previous output not found")

// GetTxFunc is a function which looks up transactions by hash.
type GetTxFunc func(ctx context.Context, hash *chainhash.Hash) (*wire.MsgTx,
	error)

// CalculateFee returns the total fees for the transaction provided.
func CalculateFee(ctx context.Context, getTx GetTxFunc,
	txid *chainhash.Hash) (btcutil.Amount, error) {

	var fees btcutil.Amount

	tx, err := getTx(ctx, txid)
	if err != nil {
		return 0, err
	}

	// Lookup each of our inputs and add their value to our fees.
	for _, in := range tx.TxIn {
		prevOut := in.PreviousOutPoint

		prevTx, err := getTx(ctx, &prevOut.Hash)
		if err != nil {
			return 0, err
		}

		if int(prevOut.Index) >= len(prevTx.TxOut) {
			return 0, ErrMissingPrevOut
		}

		fees += btcutil.Amount(prevTx.TxOut[prevOut.Index].Value)
	}

	// Next, we minus total outputs from our fees.
	for _, out := range tx.TxOut {
		fees -= btcutil.Amount(out.Value)
	}

	// Our fees are simply the difference between our input and output
	// total.
	return fees, nil
}
