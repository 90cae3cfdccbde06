// Package chanclose reports on how a lnd node's recently closed channels were
// resolved on chain. It wires the close report pipeline up to lnd, using the
// node's chain notifier to find the spends of closing outputs and a bitcoind
// or btcd backend to look up transactions.
package chanclose

import (
	"context"

	"github.com/lightninglabs/chanclose/closes"
	"github.com/lightninglabs/chanclose/nodes"
)

// GetChannelCloses produces a report of the most recent channel closes of
// the node requested, or our default node if none is named.
func GetChannelCloses(ctx context.Context, cfg *Config,
	req *closes.Request) (*closes.Report, error) {

	store := nodes.NewStore(&nodes.Config{
		Default:  cfg.defaultCredentials(),
		NodesDir: cfg.NodesDir,
	})

	report, err := closes.GetChannelCloses(ctx, &closes.Config{
		Credentials: store.Credentials,
		OpenSession: func(ctx context.Context,
			creds *nodes.Credentials) (closes.Session, error) {

			return openSession(ctx, cfg, creds)
		},
	}, req)
	if err != nil {
		return nil, err
	}

	log.Debugf("Reported on %v channel closes", len(report.Closes))

	return report, nil
}
