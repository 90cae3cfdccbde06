package closes

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/chanclose/nodes"
	"github.com/lightninglabs/chanclose/resolutions"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

var (
	errMock = errors.New("mock error")

	testCreds = &nodes.Credentials{
		RPCServer: "localhost:10009",
	}

	testResolutions = []resolutions.Resolution{
		{
			Type:  resolutions.ResolutionTypeToLocal,
			Value: 900,
		},
		{
			Type:  resolutions.ResolutionTypeAnchor,
			Value: 330,
		},
	}
)

// mockSession is a session which serves a fixed set of closes and records
// the calls made to it.
type mockSession struct {
	closed    []ClosedChannel
	closedErr error

	height    uint32
	heightErr error

	// resolveErr is returned when resolving the close of the channel
	// point set in failChannel.
	resolveErr  error
	failChannel wire.OutPoint

	fee    fn.Option[btcutil.Amount]
	feeErr error

	mu       sync.Mutex
	resolved []wire.OutPoint
	closes   int
}

func (m *mockSession) ClosedChannels(_ context.Context) ([]ClosedChannel,
	error) {

	return m.closed, m.closedErr
}

func (m *mockSession) CurrentHeight(_ context.Context) (uint32, error) {
	return m.height, m.heightErr
}

func (m *mockSession) ResolveClose(_ context.Context,
	channel *ClosedChannel) ([]resolutions.Resolution, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	m.resolved = append(m.resolved, channel.ChannelPoint)

	if m.resolveErr != nil && channel.ChannelPoint == m.failChannel {
		return nil, m.resolveErr
	}

	return testResolutions, nil
}

func (m *mockSession) CloseFee(_ context.Context,
	_ *chainhash.Hash) (fn.Option[btcutil.Amount], error) {

	return m.fee, m.feeErr
}

func (m *mockSession) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closes++
}

// testConfig returns a config which serves our mock session.
func testConfig(session *mockSession) *Config {
	return &Config{
		Credentials: func(fn.Option[string]) (*nodes.Credentials,
			error) {

			return testCreds, nil
		},
		OpenSession: func(context.Context,
			*nodes.Credentials) (Session, error) {

			return session, nil
		},
	}
}

// closedChannel creates a closed channel with a unique channel point and
// closing transaction.
func closedChannel(id byte, closeType CloseType,
	height uint32) ClosedChannel {

	return ClosedChannel{
		Capacity:      1_000_000,
		PartnerPubKey: [33]byte{2, id},
		ChannelPoint: wire.OutPoint{
			Hash:  chainhash.Hash{id},
			Index: uint32(id),
		},
		CloseHeight:   height,
		CloseType:     closeType,
		ClosingTxHash: chainhash.Hash{0xff, id},
	}
}

// TestGetChannelClosesLimit tests selection of the most recent closes, with
// funding cancellations excluded before we apply our limit.
func TestGetChannelClosesLimit(t *testing.T) {
	var (
		chanA = closedChannel(1, CloseTypeFundingCancel, 90)
		chanB = closedChannel(2, CloseTypeCooperative, 100)
		chanC = closedChannel(3, CloseTypeLocalForce, 110)
		chanD = closedChannel(4, CloseTypeRemoteForce, 120)
	)

	session := &mockSession{
		closed: []ClosedChannel{chanA, chanB, chanC, chanD},
		height: 130,
		fee:    fn.Some(btcutil.Amount(250)),
	}

	report, err := GetChannelCloses(
		context.Background(), testConfig(session), &Request{
			Limit: fn.Some(uint32(2)),
		},
	)
	require.NoError(t, err)
	require.False(t, report.StaleHeight)
	require.Len(t, report.Closes, 2)

	// Our closes are reported in the order they closed.
	require.Equal(t, chanC.ClosingTxHash.String(),
		report.Closes[0].CloseTransactionID)
	require.Equal(t, int64(20), report.Closes[0].BlocksSinceClose)
	require.Equal(t, chanD.ClosingTxHash.String(),
		report.Closes[1].CloseTransactionID)
	require.Equal(t, int64(10), report.Closes[1].BlocksSinceClose)

	// We resolve newest first, and never touch closes outside of our
	// limit.
	require.Equal(t, []wire.OutPoint{
		chanD.ChannelPoint, chanC.ChannelPoint,
	}, session.resolved)

	require.Equal(t, 1, session.closes)
}

// TestGetChannelClosesDefaultLimit tests the limits applied when a request
// does not set one.
func TestGetChannelClosesDefaultLimit(t *testing.T) {
	var closed []ClosedChannel
	for i := 0; i < 25; i++ {
		closed = append(closed, closedChannel(
			byte(i+1), CloseTypeCooperative, uint32(100+i),
		))
	}

	tests := []struct {
		name     string
		limit    fn.Option[uint32]
		expected int
	}{
		{
			name:     "no limit",
			limit:    fn.None[uint32](),
			expected: DefaultLimit,
		},
		{
			name:     "zero limit",
			limit:    fn.Some(uint32(0)),
			expected: DefaultLimit,
		},
		{
			name:     "limit above closes",
			limit:    fn.Some(uint32(50)),
			expected: 25,
		},
		{
			name:     "limit of one",
			limit:    fn.Some(uint32(1)),
			expected: 1,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			session := &mockSession{
				closed: closed,
				height: 200,
			}

			report, err := GetChannelCloses(
				context.Background(), testConfig(session),
				&Request{
					Limit: test.limit,
				},
			)
			require.NoError(t, err)
			require.Len(t, report.Closes, test.expected)

			// We expect the most recent closes, in order.
			offset := len(closed) - test.expected
			for i, entry := range report.Closes {
				channel := closed[offset+i]

				require.Equal(
					t, channel.ChannelPoint.Hash.String(),
					entry.TransactionID,
				)
				require.Equal(
					t, int64(200-channel.CloseHeight),
					entry.BlocksSinceClose,
				)
			}
		})
	}
}

// TestGetChannelClosesNilRequest tests that a nil request is treated as a
// request with no fields set.
func TestGetChannelClosesNilRequest(t *testing.T) {
	session := &mockSession{
		closed: []ClosedChannel{
			closedChannel(1, CloseTypeBreach, 10),
		},
		height: 10,
	}

	report, err := GetChannelCloses(
		context.Background(), testConfig(session), nil,
	)
	require.NoError(t, err)
	require.Len(t, report.Closes, 1)
	require.Equal(t, int64(0), report.Closes[0].BlocksSinceClose)
}

// TestGetChannelClosesNode tests that we load credentials for the node
// requested and open our session with them.
func TestGetChannelClosesNode(t *testing.T) {
	var (
		requested fn.Option[string]
		opened    *nodes.Credentials
		aliceCred = &nodes.Credentials{
			Name:      "alice",
			RPCServer: "alice:10009",
		}
	)

	session := &mockSession{}
	cfg := &Config{
		Credentials: func(node fn.Option[string]) (*nodes.Credentials,
			error) {

			requested = node
			return aliceCred, nil
		},
		OpenSession: func(_ context.Context,
			creds *nodes.Credentials) (Session, error) {

			opened = creds
			return session, nil
		},
	}

	_, err := GetChannelCloses(context.Background(), cfg, &Request{
		Node: fn.Some("alice"),
	})
	require.NoError(t, err)
	require.Equal(t, fn.Some("alice"), requested)
	require.Equal(t, aliceCred, opened)
}

// TestGetChannelClosesEmpty tests reports with no eligible closes.
func TestGetChannelClosesEmpty(t *testing.T) {
	session := &mockSession{
		closed: []ClosedChannel{
			closedChannel(1, CloseTypeFundingCancel, 100),
			closedChannel(2, CloseTypeFundingCancel, 101),
		},
		height: 130,
	}

	report, err := GetChannelCloses(
		context.Background(), testConfig(session), &Request{},
	)
	require.NoError(t, err)
	require.NotNil(t, report.Closes)
	require.Empty(t, report.Closes)
	require.Empty(t, session.resolved)
}

// TestGetChannelClosesAbandoned tests that channels without a closing
// transaction are reported without any chain lookups.
func TestGetChannelClosesAbandoned(t *testing.T) {
	abandoned := closedChannel(1, CloseTypeAbandoned, 0)
	abandoned.ClosingTxHash = chainhash.Hash{}

	session := &mockSession{
		closed: []ClosedChannel{abandoned},
		height: 130,
	}

	report, err := GetChannelCloses(
		context.Background(), testConfig(session), &Request{},
	)
	require.NoError(t, err)
	require.Len(t, report.Closes, 1)
	require.Empty(t, session.resolved)

	entry := report.Closes[0]
	require.Equal(t, "", entry.CloseTransactionID)
	require.Nil(t, entry.OutputResolutions)
	require.Nil(t, entry.CloseFee)
	require.Nil(t, entry.IsCooperativeClose)
	require.Nil(t, entry.IsBreachClose)
	require.Nil(t, entry.IsLocalForceClose)
	require.Nil(t, entry.IsRemoteForceClose)
}

// TestGetChannelClosesStaleHeight tests that entries closed above our
// current height are passed through with a negative blocks since close, and
// our report is flagged.
func TestGetChannelClosesStaleHeight(t *testing.T) {
	session := &mockSession{
		closed: []ClosedChannel{
			closedChannel(1, CloseTypeCooperative, 100),
			closedChannel(2, CloseTypeCooperative, 105),
		},
		height: 102,
	}

	report, err := GetChannelCloses(
		context.Background(), testConfig(session), &Request{},
	)
	require.NoError(t, err)
	require.True(t, report.StaleHeight)
	require.Equal(t, int64(2), report.Closes[0].BlocksSinceClose)
	require.Equal(t, int64(-3), report.Closes[1].BlocksSinceClose)
}

// TestGetChannelClosesFailures tests that any failure fails the whole
// request, and that errors identify the stage that failed.
func TestGetChannelClosesFailures(t *testing.T) {
	var (
		chanA = closedChannel(1, CloseTypeCooperative, 100)
		chanB = closedChannel(2, CloseTypeLocalForce, 110)
	)

	tests := []struct {
		name           string
		credsErr       error
		openErr        error
		session        *mockSession
		expectedStage  Stage
		expectedKind   error
		expectedChan   *wire.OutPoint
		sessionOpened  bool
		expectResolved int
	}{
		{
			name:          "credentials",
			credsErr:      errMock,
			session:       &mockSession{},
			expectedStage: StageCredentials,
			expectedKind:  ErrSession,
		},
		{
			name:          "open session",
			openErr:       errMock,
			session:       &mockSession{},
			expectedStage: StageSession,
			expectedKind:  ErrSession,
		},
		{
			name: "closed channels",
			session: &mockSession{
				closedErr: errMock,
			},
			expectedStage: StageClosedList,
			expectedKind:  ErrChainLookup,
			sessionOpened: true,
		},
		{
			name: "height",
			session: &mockSession{
				closed:    []ClosedChannel{chanA},
				heightErr: errMock,
			},
			expectedStage: StageHeight,
			expectedKind:  ErrChainLookup,
			sessionOpened: true,
		},
		{
			// We resolve newest first, so a failure on our oldest
			// channel happens after our newest succeeded.
			name: "resolve",
			session: &mockSession{
				closed:      []ClosedChannel{chanA, chanB},
				height:      120,
				resolveErr:  errMock,
				failChannel: chanA.ChannelPoint,
			},
			expectedStage:  StageResolve,
			expectedKind:   ErrChainLookup,
			expectedChan:   &chanA.ChannelPoint,
			sessionOpened:  true,
			expectResolved: 2,
		},
		{
			name: "close fee",
			session: &mockSession{
				closed: []ClosedChannel{chanA, chanB},
				height: 120,
				feeErr: errMock,
			},
			expectedStage:  StageResolve,
			expectedKind:   ErrChainLookup,
			expectedChan:   &chanB.ChannelPoint,
			sessionOpened:  true,
			expectResolved: 1,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			cfg := &Config{
				Credentials: func(fn.Option[string]) (
					*nodes.Credentials, error) {

					return testCreds, test.credsErr
				},
				OpenSession: func(context.Context,
					*nodes.Credentials) (Session, error) {

					if test.openErr != nil {
						return nil, test.openErr
					}

					return test.session, nil
				},
			}

			report, err := GetChannelCloses(
				context.Background(), cfg, &Request{},
			)
			require.Nil(t, report)
			require.ErrorIs(t, err, errMock)
			require.ErrorIs(t, err, test.expectedKind)

			var stageErr *StageError
			require.ErrorAs(t, err, &stageErr)
			require.Equal(t, test.expectedStage, stageErr.Stage)
			require.Equal(t, test.expectedChan, stageErr.ChannelPoint)

			expectedCloses := 0
			if test.sessionOpened {
				expectedCloses = 1
			}
			require.Equal(t, expectedCloses, test.session.closes)
			require.Len(t, test.session.resolved, test.expectResolved)
		})
	}
}

// TestGetChannelClosesCancelled tests that we stop resolving closes once our
// context is cancelled.
func TestGetChannelClosesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	session := &mockSession{
		closed: []ClosedChannel{
			closedChannel(1, CloseTypeCooperative, 100),
		},
		height: 120,
	}

	cfg := testConfig(session)
	cfg.OpenSession = func(context.Context,
		*nodes.Credentials) (Session, error) {

		cancel()
		return session, nil
	}

	_, err := GetChannelCloses(ctx, cfg, &Request{})
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, session.resolved)
	require.Equal(t, 1, session.closes)
}

// TestSelectRecent tests selection of the most recent closes.
func TestSelectRecent(t *testing.T) {
	var (
		chanA = closedChannel(1, CloseTypeCooperative, 1)
		chanB = closedChannel(2, CloseTypeCooperative, 2)
		chanC = closedChannel(3, CloseTypeCooperative, 3)
	)

	tests := []struct {
		name     string
		closed   []ClosedChannel
		limit    uint32
		expected []ClosedChannel
	}{
		{
			name:     "no closes",
			closed:   nil,
			limit:    2,
			expected: []ClosedChannel{},
		},
		{
			name:     "limit below closes",
			closed:   []ClosedChannel{chanA, chanB, chanC},
			limit:    2,
			expected: []ClosedChannel{chanC, chanB},
		},
		{
			name:     "limit above closes",
			closed:   []ClosedChannel{chanA, chanB},
			limit:    5,
			expected: []ClosedChannel{chanB, chanA},
		},
		{
			name:     "zero limit",
			closed:   []ClosedChannel{chanA},
			limit:    0,
			expected: []ClosedChannel{},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			recent := selectRecent(test.closed, test.limit)
			require.Equal(t, test.expected, recent)
		})
	}
}
