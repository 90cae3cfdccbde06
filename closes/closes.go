// Package closes produces reports of how a node's recently closed channels
// were resolved on chain. Channel state and chain height are fetched once per
// request, then the most recent closes are classified one at a time and
// assembled into a report in the order that the channels closed.
package closes

import (
	"context"
	"errors"
	"slices"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/chanclose/nodes"
	"github.com/lightninglabs/chanclose/resolutions"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/routing/route"
)

// DefaultLimit is the number of closes we report on if no limit is set.
const DefaultLimit = 20

// CloseType indicates how a channel was closed.
type CloseType int

const (
	// CloseTypeUnknown is used for closes we do not recognise.
	CloseTypeUnknown CloseType = iota

	// CloseTypeCooperative is a mutual close.
	CloseTypeCooperative

	// CloseTypeLocalForce is a force close by our node.
	CloseTypeLocalForce

	// CloseTypeRemoteForce is a force close by our peer.
	CloseTypeRemoteForce

	// CloseTypeBreach is a close where our peer broadcast a revoked state.
	CloseTypeBreach

	// CloseTypeFundingCancel is a channel whose funding transaction never
	// confirmed.
	CloseTypeFundingCancel

	// CloseTypeAbandoned is a channel that was abandoned without a close
	// transaction confirming.
	CloseTypeAbandoned
)

// String returns a string representation of a close type.
func (c CloseType) String() string {
	switch c {
	case CloseTypeCooperative:
		return "cooperative"

	case CloseTypeLocalForce:
		return "local force"

	case CloseTypeRemoteForce:
		return "remote force"

	case CloseTypeBreach:
		return "breach"

	case CloseTypeFundingCancel:
		return "funding cancel"

	case CloseTypeAbandoned:
		return "abandoned"

	default:
		return "unknown"
	}
}

// ClosedChannel describes a channel that has been closed.
type ClosedChannel struct {
	// Capacity is the total value of the channel.
	Capacity btcutil.Amount

	// PartnerPubKey is the public key of our channel peer.
	PartnerPubKey route.Vertex

	// ChannelPoint is the outpoint of the channel's funding output.
	ChannelPoint wire.OutPoint

	// CloseHeight is the height that the closing transaction confirmed at.
	CloseHeight uint32

	// CloseType is the way that the channel was closed.
	CloseType CloseType

	// ClosingTxHash is the hash of the transaction that closed the
	// channel. It is zero for channels that were never closed on chain.
	ClosingTxHash chainhash.Hash

	// SettledBalance is the balance that the close settled to our node.
	SettledBalance btcutil.Amount
}

// hasCloseTx returns true if the channel has a closing transaction.
func (c *ClosedChannel) hasCloseTx() bool {
	return c.ClosingTxHash != chainhash.Hash{}
}

// Request describes a close report.
type Request struct {
	// Limit is the number of recent closes to report on. If it is not set,
	// or zero, DefaultLimit is used.
	Limit fn.Option[uint32]

	// Node is the name of the node to report on. If it is not set, our
	// default node is used.
	Node fn.Option[string]
}

// limit returns the number of closes a request should report on.
func (r *Request) limit() uint32 {
	limit := r.Limit.UnwrapOr(DefaultLimit)
	if limit == 0 {
		return DefaultLimit
	}

	return limit
}

// Session provides access to a node and its chain backend for the duration
// of a single request.
type Session interface {
	// ClosedChannels returns all of the node's closed channels, in the
	// order that they closed.
	ClosedChannels(ctx context.Context) ([]ClosedChannel, error)

	// CurrentHeight returns the node's current best block height.
	CurrentHeight(ctx context.Context) (uint32, error)

	// ResolveClose classifies the outputs of a channel's closing
	// transaction.
	ResolveClose(ctx context.Context,
		channel *ClosedChannel) ([]resolutions.Resolution, error)

	// CloseFee returns the on chain fee paid by a closing transaction, if
	// it can be calculated.
	CloseFee(ctx context.Context,
		txid *chainhash.Hash) (fn.Option[btcutil.Amount], error)

	// Close releases the session's connections.
	Close()
}

// Config provides the functions required to produce a close report.
type Config struct {
	// Credentials returns credentials for the node named, or the default
	// node if no name is provided.
	Credentials func(node fn.Option[string]) (*nodes.Credentials, error)

	// OpenSession opens a session with the node described by a set of
	// credentials.
	OpenSession func(ctx context.Context,
		creds *nodes.Credentials) (Session, error)
}

// pipeline holds the results of each of our stages.
type pipeline struct {
	cfg *Config
	req *Request

	creds   *nodes.Credentials
	session Session
	closed  []ClosedChannel
	height  uint32
	entries []*CloseEntry
}

// GetChannelCloses produces a report of the most recent closes of a node's
// channels. Funding cancellations are never reported. Closes are classified
// one at a time against a single height snapshot, and the first failure
// fails the whole request, so a report is either complete or not returned.
func GetChannelCloses(ctx context.Context, cfg *Config,
	req *Request) (*Report, error) {

	if req == nil {
		req = &Request{}
	}

	p := &pipeline{
		cfg: cfg,
		req: req,
	}

	// Whatever happens to our later stages, we need to close our session
	// if we managed to open one.
	defer func() {
		if p.session != nil {
			p.session.Close()
		}
	}()

	stages := []*stage{
		{
			name: StageCredentials,
			run:  p.loadCredentials,
		},
		{
			name: StageSession,
			deps: []Stage{StageCredentials},
			run:  p.openSession,
		},
		{
			name: StageClosedList,
			deps: []Stage{StageSession},
			run:  p.listClosed,
		},
		{
			name: StageHeight,
			deps: []Stage{StageSession},
			run:  p.currentHeight,
		},
		{
			name: StageResolve,
			deps: []Stage{
				StageCredentials, StageClosedList, StageHeight,
			},
			run: p.resolve,
		},
	}

	if err := runStages(ctx, stages); err != nil {
		return nil, err
	}

	return newReport(p.entries), nil
}

func (p *pipeline) loadCredentials(_ context.Context) error {
	creds, err := p.cfg.Credentials(p.req.Node)
	if err != nil {
		return err
	}

	p.creds = creds

	return nil
}

func (p *pipeline) openSession(ctx context.Context) error {
	session, err := p.cfg.OpenSession(ctx, p.creds)
	if err != nil {
		return err
	}

	p.session = session

	log.Debugf("Opened session with %v", p.creds)

	return nil
}

func (p *pipeline) listClosed(ctx context.Context) error {
	closed, err := p.session.ClosedChannels(ctx)
	if err != nil {
		return err
	}

	p.closed = closed

	return nil
}

func (p *pipeline) currentHeight(ctx context.Context) error {
	height, err := p.session.CurrentHeight(ctx)
	if err != nil {
		return err
	}

	p.height = height

	return nil
}

// resolve classifies the most recent eligible closes, using the height we
// fetched as the single reference point for every entry.
func (p *pipeline) resolve(ctx context.Context) error {
	eligible := excludeFundingCancels(p.closed)
	recent := selectRecent(eligible, p.req.limit())

	log.Debugf("Resolving %v of %v closed channels for %v at height %v",
		len(recent), len(p.closed), p.creds, p.height)

	entries := make([]*CloseEntry, 0, len(recent))
	for i := range recent {
		channel := &recent[i]

		entry, err := p.resolveChannel(ctx, channel)
		if err != nil {
			return newStageError(
				StageResolve, &channel.ChannelPoint, err,
			)
		}

		entries = append(entries, entry)
	}

	// We resolved our closes newest first, so we reverse them to restore
	// the order that they closed in.
	slices.Reverse(entries)
	p.entries = entries

	return nil
}

// resolveChannel classifies a single close and assembles its report entry.
func (p *pipeline) resolveChannel(ctx context.Context,
	channel *ClosedChannel) (*CloseEntry, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Channels without a closing transaction have nothing to look up on
	// chain.
	if !channel.hasCloseTx() {
		return newCloseEntry(
			channel, nil, fn.None[btcutil.Amount](), p.height,
		), nil
	}

	resolved, err := p.session.ResolveClose(ctx, channel)
	if err != nil {
		return nil, err
	}

	fee, err := p.session.CloseFee(ctx, &channel.ClosingTxHash)
	if err != nil {
		return nil, err
	}

	return newCloseEntry(channel, resolved, fee, p.height), nil
}

// excludeFundingCancels returns the closes that were not funding
// cancellations, preserving their order.
func excludeFundingCancels(closed []ClosedChannel) []ClosedChannel {
	eligible := make([]ClosedChannel, 0, len(closed))
	for _, channel := range closed {
		if channel.CloseType == CloseTypeFundingCancel {
			continue
		}

		eligible = append(eligible, channel)
	}

	return eligible
}

// selectRecent returns the limit most recent closes from a chronologically
// ordered set, newest first. Callers that process the closes in this order
// should reverse their results to restore chronological order.
func selectRecent(closed []ClosedChannel, limit uint32) []ClosedChannel {
	count := len(closed)
	if uint64(limit) < uint64(count) {
		count = int(limit)
	}

	recent := make([]ClosedChannel, 0, count)
	for i := len(closed) - 1; i >= 0 && len(recent) < count; i-- {
		recent = append(recent, closed[i])
	}

	return recent
}

// isCancelled returns true if an error was caused by our context being
// cancelled.
func isCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}
