package closes

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightninglabs/chanclose/resolutions"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Report is a report of a node's recent channel closes.
type Report struct {
	// Closes is the set of closes reported on, in the order that they
	// closed.
	Closes []*CloseEntry `json:"closes"`

	// StaleHeight is true if the height we reported against is lower than
	// the close height of any of our entries. This happens when the
	// node's view of the chain lags behind the close information it
	// reports, and means that some entries have a negative
	// blocks_since_close.
	StaleHeight bool `json:"-"`
}

// OutputResolution describes the resolution of a single output of a closing
// transaction.
type OutputResolution struct {
	Type  resolutions.ResolutionType `json:"type"`
	Value btcutil.Amount             `json:"value"`
}

// CloseEntry describes how a single channel close was resolved. Close type
// flags, output resolutions and close fee are only present when they are set.
type CloseEntry struct {
	BlocksSinceClose   int64          `json:"blocks_since_close"`
	Capacity           btcutil.Amount `json:"capacity"`
	CloseTransactionID string         `json:"close_transaction_id"`

	IsBreachClose      *bool `json:"is_breach_close,omitempty"`
	IsCooperativeClose *bool `json:"is_cooperative_close,omitempty"`
	IsLocalForceClose  *bool `json:"is_local_force_close,omitempty"`
	IsRemoteForceClose *bool `json:"is_remote_force_close,omitempty"`

	OutputResolutions []OutputResolution `json:"output_resolutions,omitempty"`

	PartnerPublicKey string `json:"partner_public_key"`
	TransactionID    string `json:"transaction_id"`
	TransactionVout  uint32 `json:"transaction_vout"`

	CloseFee *btcutil.Amount `json:"close_fee,omitempty"`
}

// newCloseEntry assembles the report entry for a single close. Blocks since
// close is not clamped, so a height below the close height produces a
// negative value.
func newCloseEntry(channel *ClosedChannel,
	resolved []resolutions.Resolution, closeFee fn.Option[btcutil.Amount],
	height uint32) *CloseEntry {

	entry := &CloseEntry{
		BlocksSinceClose: int64(height) - int64(channel.CloseHeight),
		Capacity:         channel.Capacity,
		PartnerPublicKey: channel.PartnerPubKey.String(),
		TransactionID:    channel.ChannelPoint.Hash.String(),
		TransactionVout:  channel.ChannelPoint.Index,
	}

	if channel.hasCloseTx() {
		entry.CloseTransactionID = channel.ClosingTxHash.String()
	}

	// Only the flag matching our close type is set, all others are left
	// out entirely.
	isSet := true
	switch channel.CloseType {
	case CloseTypeBreach:
		entry.IsBreachClose = &isSet

	case CloseTypeCooperative:
		entry.IsCooperativeClose = &isSet

	case CloseTypeLocalForce:
		entry.IsLocalForceClose = &isSet

	case CloseTypeRemoteForce:
		entry.IsRemoteForceClose = &isSet
	}

	for _, res := range resolved {
		entry.OutputResolutions = append(
			entry.OutputResolutions, OutputResolution{
				Type:  res.Type,
				Value: res.Value,
			},
		)
	}

	closeFee.WhenSome(func(fee btcutil.Amount) {
		entry.CloseFee = &fee
	})

	return entry
}

// newReport creates a report from a set of entries, flagging it if any entry
// was reported against a stale height.
func newReport(entries []*CloseEntry) *Report {
	report := &Report{
		Closes: entries,
	}

	if report.Closes == nil {
		report.Closes = []*CloseEntry{}
	}

	for _, entry := range report.Closes {
		if entry.BlocksSinceClose >= 0 {
			continue
		}

		report.StaleHeight = true
		log.Warnf("Close %v is %v blocks ahead of our best height",
			entry.CloseTransactionID, -entry.BlocksSinceClose)
	}

	return report
}
