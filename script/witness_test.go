package script

import (
	"testing"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/chanclose/script/scripttest"
	"github.com/stretchr/testify/require"
)

var sig = make([]byte, 71)

// TestMatchWitness tests detection of the spend path used to spend commitment
// outputs.
func TestMatchWitness(t *testing.T) {
	var (
		toLocal  = scripttest.ToLocal(t, 144)
		offered  = scripttest.OfferedHtlc(t, true)
		received = scripttest.ReceivedHtlc(t, 500000, false)
		anchor   = scripttest.Anchor(t)
	)

	tests := []struct {
		name     string
		witness  wire.TxWitness
		pkScript []byte
		template Template
		path     SpendPath
	}{
		{
			name:     "to_local delay",
			witness:  wire.TxWitness{sig, nil, toLocal},
			pkScript: scripttest.P2WSH(t, toLocal),
			template: TemplateToLocal,
			path:     SpendPathDelay,
		},
		{
			name: "to_local revocation",
			witness: wire.TxWitness{
				sig, revocationUnlock, toLocal,
			},
			pkScript: scripttest.P2WSH(t, toLocal),
			template: TemplateToLocal,
			path:     SpendPathRevocation,
		},
		{
			name: "to_local unexpected selector",
			witness: wire.TxWitness{
				sig, {2}, toLocal,
			},
			pkScript: scripttest.P2WSH(t, toLocal),
			template: TemplateToLocal,
			path:     SpendPathUnknown,
		},
		{
			name: "offered htlc revocation",
			witness: wire.TxWitness{
				sig, scripttest.RevocationKey, offered,
			},
			pkScript: scripttest.P2WSH(t, offered),
			template: TemplateOfferedHtlc,
			path:     SpendPathRevocation,
		},
		{
			name: "offered htlc remote success",
			witness: wire.TxWitness{
				sig, scripttest.Preimage, offered,
			},
			pkScript: scripttest.P2WSH(t, offered),
			template: TemplateOfferedHtlc,
			path:     SpendPathSuccess,
		},
		{
			name: "offered htlc second level timeout",
			witness: wire.TxWitness{
				nil, sig, sig, nil, offered,
			},
			pkScript: scripttest.P2WSH(t, offered),
			template: TemplateOfferedHtlc,
			path:     SpendPathTimeout,
		},
		{
			name: "received htlc second level success",
			witness: wire.TxWitness{
				nil, sig, sig, scripttest.Preimage, received,
			},
			pkScript: scripttest.P2WSH(t, received),
			template: TemplateReceivedHtlc,
			path:     SpendPathSuccess,
		},
		{
			name:     "received htlc remote timeout",
			witness:  wire.TxWitness{sig, nil, received},
			pkScript: scripttest.P2WSH(t, received),
			template: TemplateReceivedHtlc,
			path:     SpendPathTimeout,
		},
		{
			name:     "anchor sweep",
			witness:  wire.TxWitness{nil, anchor},
			pkScript: scripttest.P2WSH(t, anchor),
			template: TemplateAnchor,
			path:     SpendPathKey,
		},
		{
			name:     "witness script does not match output",
			witness:  wire.TxWitness{sig, nil, toLocal},
			pkScript: scripttest.P2WSH(t, anchor),
			template: TemplateUnknown,
			path:     SpendPathUnknown,
		},
		{
			name:     "witness too short",
			witness:  wire.TxWitness{toLocal},
			pkScript: scripttest.P2WSH(t, toLocal),
			template: TemplateUnknown,
			path:     SpendPathUnknown,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			template, path, err := MatchWitness(
				testCase.witness, testCase.pkScript,
			)
			require.NoError(t, err)
			require.Equal(t, testCase.template, template)
			require.Equal(t, testCase.path, path)
		})
	}
}

// TestMatchWitnessScriptHash tests that a witness is only matched against the
// p2wsh output that commits to its witness script.
func TestMatchWitnessScriptHash(t *testing.T) {
	toLocal := scripttest.ToLocal(t, 144)
	pkScript := scripttest.P2WSH(t, toLocal)

	require.Equal(
		t, txscript.WitnessV0ScriptHashTy,
		txscript.GetScriptClass(pkScript),
	)

	template, path, err := MatchWitness(
		wire.TxWitness{sig, nil, toLocal}, pkScript,
	)
	require.NoError(t, err)
	require.Equal(t, TemplateToLocal, template)
	require.Equal(t, SpendPathDelay, path)

	// Changing a single byte of the output's script hash means that our
	// witness script no longer matches it.
	tweaked := append([]byte(nil), pkScript...)
	tweaked[len(tweaked)-1] ^= 0x01

	template, path, err = MatchWitness(
		wire.TxWitness{sig, nil, toLocal}, tweaked,
	)
	require.NoError(t, err)
	require.Equal(t, TemplateUnknown, template)
	require.Equal(t, SpendPathUnknown, path)
}
