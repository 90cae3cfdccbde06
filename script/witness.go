package script

import (
	"bytes"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/input"
)

// minWitnessLength is the smallest witness that can spend a p2wsh output: at
// least one unlocking element plus the witness script.
const minWitnessLength = 2

// revocationUnlock is the element that selects the revocation branch of a
// to_local output.
var revocationUnlock = []byte{1}

// SpendPath indicates which branch of a commitment script a spend took.
type SpendPath int

const (
	// SpendPathUnknown is returned when the witness does not match any of
	// the branches we expect for its template.
	SpendPathUnknown SpendPath = iota

	// SpendPathDelay is the csv delayed spend of a to_local output by its
	// owner.
	SpendPathDelay

	// SpendPathRevocation is a spend with the revocation key, which is
	// only possible after the commitment's owner broadcast a revoked
	// state.
	SpendPathRevocation

	// SpendPathSuccess is a htlc spend that reveals the payment preimage.
	SpendPathSuccess

	// SpendPathTimeout is a htlc spend after its expiry.
	SpendPathTimeout

	// SpendPathKey is a single key spend of an output without branches,
	// such as an anchor or to_remote output.
	SpendPathKey
)

// String returns a string representation of a spend path.
func (s SpendPath) String() string {
	switch s {
	case SpendPathDelay:
		return "delay"

	case SpendPathRevocation:
		return "revocation"

	case SpendPathSuccess:
		return "success"

	case SpendPathTimeout:
		return "timeout"

	case SpendPathKey:
		return "key"

	default:
		return "unknown"
	}
}

// MatchWitness identifies the template of a p2wsh output and the path that
// was used to spend it from the witness of the spending input. The witness
// script, which is the last element of the witness, must hash to the script
// hash committed to in pkScript, otherwise the witness is not a spend of this
// output and we return TemplateUnknown.
//
// We expect the following witnesses (excluding the witness script):
// - to_local delay:            <sig> <>
// - to_local revocation:       <sig> 1
// - htlc revocation:           <sig> <revocation key>
// - offered htlc success:      <sig> <preimage>
// - offered htlc timeout:      0 <sig> <sig> <>
// - received htlc success:     0 <sig> <sig> <preimage>
// - received htlc timeout:     <sig> <>
func MatchWitness(witness wire.TxWitness, pkScript []byte) (Template,
	SpendPath, error) {

	if len(witness) < minWitnessLength {
		return TemplateUnknown, SpendPathUnknown, nil
	}

	witnessScript := witness[len(witness)-1]
	scriptHash, err := input.WitnessScriptHash(witnessScript)
	if err != nil {
		return TemplateUnknown, SpendPathUnknown, err
	}

	if !bytes.Equal(scriptHash, pkScript) {
		return TemplateUnknown, SpendPathUnknown, nil
	}

	template, err := MatchTemplate(witnessScript)
	if err != nil {
		return TemplateUnknown, SpendPathUnknown, err
	}

	// The element directly before our witness script selects the branch
	// of the script that we are spending.
	unlock := witness[len(witness)-2]
	args := len(witness) - 1

	switch template {
	case TemplateToLocal:
		switch {
		case bytes.Equal(unlock, revocationUnlock):
			return template, SpendPathRevocation, nil

		case len(unlock) == 0:
			return template, SpendPathDelay, nil
		}

	case TemplateOfferedHtlc, TemplateReceivedHtlc:
		switch {
		// The revocation path is the only htlc spend that supplies a
		// public key rather than selecting with a preimage or an empty
		// element.
		case args == 2 && len(unlock) == keyLength:
			return template, SpendPathRevocation, nil

		case len(unlock) == preimageLength:
			return template, SpendPathSuccess, nil

		case len(unlock) == 0:
			return template, SpendPathTimeout, nil
		}

	case TemplateAnchor, TemplateToRemote:
		return template, SpendPathKey, nil
	}

	return template, SpendPathUnknown, nil
}
