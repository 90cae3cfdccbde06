// Package lndwrap wraps the lndclient calls we need to report on channel
// closes, converting lnd's responses to our own types.
package lndwrap

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/chanclose/closes"
	"github.com/lightninglabs/chanclose/resolutions"
	"github.com/lightninglabs/chanclose/utils"
	"github.com/lightninglabs/lndclient"
	"github.com/lightningnetwork/lnd/chainntnfs"
	"github.com/lightningnetwork/lnd/clock"
)

// DefaultSpendTimeout is the amount of time we wait for lnd to notify us of
// an output's spend.
const DefaultSpendTimeout = time.Minute

// ErrNotificationTimeout is returned when we do not get a spend
// notification from lnd in time. lnd only notifies confirmed spends, so this
// happens for outputs whose spend is still in the mempool. It matches
// resolutions.ErrSpendUnknown.
var ErrNotificationTimeout = fmt.Errorf("timed out waiting for spend "+
	"notification: %w", resolutions.ErrSpendUnknown)

// errNotifierClosed is returned if lnd closes our notification without
// sending a spend.
var errNotifierClosed = errors.New("spend notification closed")

// ClosedChannels returns our node's closed channels, ordered by the height
// that they closed at.
func ClosedChannels(ctx context.Context,
	lnd lndclient.LightningClient) ([]closes.ClosedChannel, error) {

	closed, err := lnd.ClosedChannels(ctx)
	if err != nil {
		return nil, err
	}

	return convertClosedChannels(closed)
}

// convertClosedChannels converts a set of lnd closed channels to our own type
// and sorts them by close height. Channels that closed at the same height
// keep the order that lnd returned them in.
func convertClosedChannels(
	closed []lndclient.ClosedChannel) ([]closes.ClosedChannel, error) {

	channels := make([]closes.ClosedChannel, 0, len(closed))
	for _, channel := range closed {
		converted, err := closedChannel(channel)
		if err != nil {
			return nil, err
		}

		channels = append(channels, *converted)
	}

	sort.SliceStable(channels, func(i, j int) bool {
		return channels[i].CloseHeight < channels[j].CloseHeight
	})

	return channels, nil
}

// closedChannel converts a lnd closed channel to our own type.
func closedChannel(channel lndclient.ClosedChannel) (*closes.ClosedChannel,
	error) {

	chanPoint, err := utils.GetOutPointFromString(channel.ChannelPoint)
	if err != nil {
		return nil, fmt.Errorf("invalid channel point %v: %w",
			channel.ChannelPoint, err)
	}

	// Channels that never confirmed a close have no closing transaction,
	// which we represent with the zero hash.
	closeHash, err := utils.GetHashFromString(channel.ClosingTxHash)
	if err != nil && !errors.Is(err, utils.ErrNoHash) {
		return nil, fmt.Errorf("invalid closing tx for %v: %w",
			chanPoint, err)
	}

	return &closes.ClosedChannel{
		Capacity:       channel.Capacity,
		PartnerPubKey:  channel.PubKeyBytes,
		ChannelPoint:   *chanPoint,
		CloseHeight:    channel.CloseHeight,
		CloseType:      closeType(channel.CloseType),
		ClosingTxHash:  closeHash,
		SettledBalance: channel.SettledBalance,
	}, nil
}

// closeType converts a lnd close type to our own.
func closeType(closeType lndclient.CloseType) closes.CloseType {
	switch closeType {
	case lndclient.CloseTypeCooperative:
		return closes.CloseTypeCooperative

	case lndclient.CloseTypeLocalForce:
		return closes.CloseTypeLocalForce

	case lndclient.CloseTypeRemoteForce:
		return closes.CloseTypeRemoteForce

	case lndclient.CloseTypeBreach:
		return closes.CloseTypeBreach

	case lndclient.CloseTypeFundingCancelled:
		return closes.CloseTypeFundingCancel

	case lndclient.CloseTypeAbandoned:
		return closes.CloseTypeAbandoned

	default:
		return closes.CloseTypeUnknown
	}
}

// CurrentHeight returns our node's current best block height.
func CurrentHeight(ctx context.Context,
	lnd lndclient.LightningClient) (uint32, error) {

	info, err := lnd.GetInfo(ctx)
	if err != nil {
		return 0, err
	}

	return info.BlockHeight, nil
}

// RegisterSpend registers for a spend notification for an output.
type RegisterSpend func(ctx context.Context, outpoint *wire.OutPoint,
	pkScript []byte, heightHint int32) (chan *chainntnfs.SpendDetail,
	chan error, error)

// SpendConfig provides the functions we need to look up output spends.
type SpendConfig struct {
	// RegisterSpend registers for spend notifications with lnd.
	RegisterSpend RegisterSpend

	// IsUnspent optionally checks whether an output is unspent before we
	// register for its spend. Without it, unspent outputs always wait for
	// our timeout.
	IsUnspent func(ctx context.Context, outpoint wire.OutPoint) (bool,
		error)

	// Clock is used for our notification timeout. If it is not set, the
	// system clock is used.
	Clock clock.Clock

	// Timeout is the amount of time we wait for a spend notification. If
	// it is not set, DefaultSpendTimeout is used.
	Timeout time.Duration
}

// LookupSpend looks up the spend of an output using lnd's chain notifier.
// It returns nil if the output is unspent.
func LookupSpend(ctx context.Context, cfg *SpendConfig,
	outpoint wire.OutPoint, pkScript []byte,
	heightHint uint32) (*resolutions.Spend, error) {

	if cfg.IsUnspent != nil {
		unspent, err := cfg.IsUnspent(ctx, outpoint)
		if err != nil {
			return nil, err
		}

		if unspent {
			log.Tracef("Output %v unspent", outpoint)
			return nil, nil
		}
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultSpendTimeout
	}

	notifyClock := cfg.Clock
	if notifyClock == nil {
		notifyClock = clock.NewDefaultClock()
	}

	// Cancel our notification once we're done with it, so that lnd can
	// clean up the subscription.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	spendChan, errChan, err := cfg.RegisterSpend(
		ctx, &outpoint, pkScript, int32(heightHint),
	)
	if err != nil {
		return nil, err
	}

	select {
	case spend, ok := <-spendChan:
		if !ok || spend == nil {
			return nil, fmt.Errorf("%w: %v", errNotifierClosed,
				outpoint)
		}

		log.Tracef("Output %v spent by %v", outpoint,
			spend.SpenderTxHash)

		return &resolutions.Spend{
			Tx:         spend.SpendingTx,
			InputIndex: spend.SpenderInputIndex,
		}, nil

	case err := <-errChan:
		return nil, err

	case <-notifyClock.TickAfter(timeout):
		return nil, fmt.Errorf("%w: %v", ErrNotificationTimeout,
			outpoint)

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
