package resolutions

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
)

// ResolutionType describes what happened to an output of a closing
// transaction.
type ResolutionType int

const (
	// ResolutionTypeUnknown is the zero value, it is never reported.
	ResolutionTypeUnknown ResolutionType = iota

	// ResolutionTypeCooperative is an output of a cooperative close that
	// we could not attribute to either party.
	ResolutionTypeCooperative

	// ResolutionTypeToLocal is the output paying the party that closed
	// the channel (for force closes) or our own output (for cooperative
	// closes).
	ResolutionTypeToLocal

	// ResolutionTypeToRemote is the output paying the party that did not
	// close the channel (for force closes) or our peer's output (for
	// cooperative closes).
	ResolutionTypeToRemote

	// ResolutionTypeAnchor is an anchor output used for fee bumping.
	ResolutionTypeAnchor

	// ResolutionTypeHtlcSuccess is a htlc that was claimed with its
	// preimage.
	ResolutionTypeHtlcSuccess

	// ResolutionTypeHtlcTimeout is a htlc that was claimed after it timed
	// out.
	ResolutionTypeHtlcTimeout

	// ResolutionTypeBreachRemedy is an output that was swept with the
	// revocation key after a revoked state was published.
	ResolutionTypeBreachRemedy
)

// String returns the name of a resolution type.
func (r ResolutionType) String() string {
	switch r {
	case ResolutionTypeCooperative:
		return "cooperative"

	case ResolutionTypeToLocal:
		return "to_local"

	case ResolutionTypeToRemote:
		return "to_remote"

	case ResolutionTypeAnchor:
		return "anchor"

	case ResolutionTypeHtlcSuccess:
		return "htlc_success"

	case ResolutionTypeHtlcTimeout:
		return "htlc_timeout"

	case ResolutionTypeBreachRemedy:
		return "breach_remedy"

	default:
		return "unknown"
	}
}

// MarshalText encodes a resolution type as its name.
func (r ResolutionType) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Resolution is the disposition of a single output of a closing transaction.
type Resolution struct {
	// Type is the type of resolution.
	Type ResolutionType

	// Value is the value of the output.
	Value btcutil.Amount

	// OutPoint is the output of the closing transaction that was
	// resolved.
	OutPoint wire.OutPoint
}

// Spend describes the transaction input that spent an output.
type Spend struct {
	// Tx is the spending transaction.
	Tx *wire.MsgTx

	// InputIndex is the index of the input in Tx that spends the output.
	InputIndex uint32
}
