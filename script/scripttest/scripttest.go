// Package scripttest builds bolt03 commitment scripts with placeholder keys
// and hashes for use in tests.
package scripttest

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/lightningnetwork/lnd/input"
	"github.com/stretchr/testify/require"
)

var (
	// LocalKey, RemoteKey and RevocationKey are placeholder compressed
	// public keys. Commitment templates are matched by length, so their
	// contents are irrelevant.
	LocalKey      = key(2)
	RemoteKey     = key(3)
	RevocationKey = key(4)

	// PaymentHash is a placeholder ripemd160 payment hash.
	PaymentHash = make([]byte, 20)

	// Preimage is a placeholder payment preimage.
	Preimage = make([]byte, 32)
)

func key(prefix byte) []byte {
	k := make([]byte, 33)
	k[0] = prefix

	return k
}

func build(t *testing.T, b *txscript.ScriptBuilder) []byte {
	script, err := b.Script()
	require.NoError(t, err)

	return script
}

// ToLocal returns a to_local script with the csv delay provided.
func ToLocal(t *testing.T, csvDelay int64) []byte {
	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_IF)
	b.AddData(RevocationKey)
	b.AddOp(txscript.OP_ELSE)
	b.AddInt64(csvDelay)
	b.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)
	b.AddOp(txscript.OP_DROP)
	b.AddData(LocalKey)
	b.AddOp(txscript.OP_ENDIF)
	b.AddOp(txscript.OP_CHECKSIG)

	return build(t, b)
}

// ToRemote returns an anchor channel to_remote script.
func ToRemote(t *testing.T) []byte {
	b := txscript.NewScriptBuilder()
	b.AddData(RemoteKey)
	b.AddOp(txscript.OP_CHECKSIGVERIFY)
	b.AddOp(txscript.OP_1)
	b.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)

	return build(t, b)
}

// Anchor returns an anchor output script.
func Anchor(t *testing.T) []byte {
	b := txscript.NewScriptBuilder()
	b.AddData(LocalKey)
	b.AddOp(txscript.OP_CHECKSIG)
	b.AddOp(txscript.OP_IFDUP)
	b.AddOp(txscript.OP_NOTIF)
	b.AddOp(txscript.OP_16)
	b.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)
	b.AddOp(txscript.OP_ENDIF)

	return build(t, b)
}

func htlcPrefix(b *txscript.ScriptBuilder) {
	b.AddOp(txscript.OP_DUP)
	b.AddOp(txscript.OP_HASH160)
	b.AddData(btcutil.Hash160(RevocationKey))
	b.AddOp(txscript.OP_EQUAL)
	b.AddOp(txscript.OP_IF)
	b.AddOp(txscript.OP_CHECKSIG)
	b.AddOp(txscript.OP_ELSE)
	b.AddData(RemoteKey)
	b.AddOp(txscript.OP_SWAP)
	b.AddOp(txscript.OP_SIZE)
	b.AddInt64(32)
	b.AddOp(txscript.OP_EQUAL)
}

func htlcSuffix(b *txscript.ScriptBuilder, anchors bool) {
	if anchors {
		b.AddOp(txscript.OP_1)
		b.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)
		b.AddOp(txscript.OP_DROP)
	}
	b.AddOp(txscript.OP_ENDIF)
}

// OfferedHtlc returns an offered htlc script.
func OfferedHtlc(t *testing.T, anchors bool) []byte {
	b := txscript.NewScriptBuilder()
	htlcPrefix(b)
	b.AddOp(txscript.OP_NOTIF)
	b.AddOp(txscript.OP_DROP)
	b.AddOp(txscript.OP_2)
	b.AddOp(txscript.OP_SWAP)
	b.AddData(LocalKey)
	b.AddOp(txscript.OP_2)
	b.AddOp(txscript.OP_CHECKMULTISIG)
	b.AddOp(txscript.OP_ELSE)
	b.AddOp(txscript.OP_HASH160)
	b.AddData(PaymentHash)
	b.AddOp(txscript.OP_EQUALVERIFY)
	b.AddOp(txscript.OP_CHECKSIG)
	b.AddOp(txscript.OP_ENDIF)
	htlcSuffix(b, anchors)

	return build(t, b)
}

// ReceivedHtlc returns a received htlc script with the expiry provided.
func ReceivedHtlc(t *testing.T, cltvExpiry int64, anchors bool) []byte {
	b := txscript.NewScriptBuilder()
	htlcPrefix(b)
	b.AddOp(txscript.OP_IF)
	b.AddOp(txscript.OP_HASH160)
	b.AddData(PaymentHash)
	b.AddOp(txscript.OP_EQUALVERIFY)
	b.AddOp(txscript.OP_2)
	b.AddOp(txscript.OP_SWAP)
	b.AddData(LocalKey)
	b.AddOp(txscript.OP_2)
	b.AddOp(txscript.OP_CHECKMULTISIG)
	b.AddOp(txscript.OP_ELSE)
	b.AddOp(txscript.OP_DROP)
	b.AddInt64(cltvExpiry)
	b.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	b.AddOp(txscript.OP_DROP)
	b.AddOp(txscript.OP_CHECKSIG)
	b.AddOp(txscript.OP_ENDIF)
	htlcSuffix(b, anchors)

	return build(t, b)
}

// P2WSH returns the output script that pays to the witness script provided.
func P2WSH(t *testing.T, witnessScript []byte) []byte {
	pkScript, err := input.WitnessScriptHash(witnessScript)
	require.NoError(t, err)

	return pkScript
}

// P2WPKH returns a pay to witness pubkey hash output script for the key
// provided.
func P2WPKH(t *testing.T, pubkey []byte) []byte {
	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_0)
	b.AddData(btcutil.Hash160(pubkey))

	return build(t, b)
}

// P2TR returns a taproot output script with a placeholder output key.
func P2TR(t *testing.T) []byte {
	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_1)
	b.AddData(make([]byte, 32))

	return build(t, b)
}
