package main

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/lightninglabs/chanclose"
	"github.com/lightninglabs/chanclose/closes"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/signal"
	"github.com/urfave/cli"
)

var closesCommand = cli.Command{
	Name:     "closes",
	Category: "reporting",
	Usage:    "Report on how recently closed channels were resolved.",
	Description: `
	Get a report of a node's most recently closed channels, describing how
	each channel closed and how the outputs of its closing transaction
	were resolved on chain. Channels that were never funded are not
	included. Closes are listed in the order that they closed.`,
	Flags: []cli.Flag{
		cli.Uint64Flag{
			Name: "limit",
			Usage: fmt.Sprintf("the number of recent closes to "+
				"report on, defaults to %v",
				closes.DefaultLimit),
		},
		cli.StringFlag{
			Name: "node",
			Usage: "the name of the node profile to report on, " +
				"defaults to the node in our config",
		},
	},
	Action: queryCloses,
}

func queryCloses(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	req, err := parseClosesRequest(ctx)
	if err != nil {
		return err
	}

	interceptor, err := signal.Intercept()
	if err != nil {
		return err
	}

	// A critical error logged by any of our subsystems stops our report.
	shutdown := func() {
		if interceptor.Listening() {
			interceptor.RequestShutdown()
		}
	}

	err = chanclose.SetupLoggers(os.Stderr, cfg.DebugLevel, shutdown)
	if err != nil {
		return err
	}

	// Cancel our report if we are interrupted.
	rpcCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-interceptor.ShutdownChannel():
			cancel()

		case <-rpcCtx.Done():
		}
	}()

	report, err := chanclose.GetChannelCloses(rpcCtx, cfg, req)
	if err != nil {
		if closes.IsTransient(err) {
			return fmt.Errorf("%w (temporary failure, the report "+
				"may succeed if retried)", err)
		}

		return err
	}

	if report.StaleHeight {
		_, _ = fmt.Fprintln(os.Stderr, "[chanclose] warning: node's "+
			"best height is below the close height of some "+
			"channels, blocks_since_close is negative for those "+
			"closes")
	}

	printJSON(report)
	return nil
}

// parseClosesRequest creates a request from our command's flags.
func parseClosesRequest(ctx *cli.Context) (*closes.Request, error) {
	req := &closes.Request{}

	if ctx.IsSet("limit") {
		limit := ctx.Uint64("limit")
		if limit > math.MaxUint32 {
			return nil, fmt.Errorf("limit: %v exceeds maximum: %v",
				limit, uint32(math.MaxUint32))
		}

		req.Limit = fn.Some(uint32(limit))
	}

	if ctx.IsSet("node") {
		req.Node = fn.Some(ctx.String("node"))
	}

	return req, nil
}
