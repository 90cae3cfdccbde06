package main

import (
	"os"

	"github.com/lightninglabs/chanclose"
	"github.com/urfave/cli"
)

const appVersion = "0.1.0"

var (
	configFileFlag = cli.StringFlag{
		Name:  "configfile",
		Usage: "path to chanclose's config file",
		Value: chanclose.DefaultConfigFile,
	}

	// forwardedFlags are the settings that we pass on to our config
	// parser when they are set on the command line.
	forwardedFlags = []cli.Flag{
		cli.StringFlag{
			Name:  "rpcserver",
			Usage: "host:port of the default lnd node",
		},
		cli.StringFlag{
			Name:  "tlscertpath",
			Usage: "path to the default lnd node's TLS certificate",
		},
		cli.StringFlag{
			Name:  "macaroonpath",
			Usage: "path to the default lnd node's macaroon",
		},
		cli.StringFlag{
			Name: "network",
			Usage: "the network the default lnd node is running " +
				"on",
		},
		cli.StringFlag{
			Name:  "nodesdir",
			Usage: "directory containing named node profiles",
		},
		cli.StringFlag{
			Name:  "debuglevel",
			Usage: "logging level for all subsystems",
		},
		cli.StringFlag{
			Name: "spendtimeout",
			Usage: "the amount of time to wait for spend " +
				"notifications from lnd",
		},
		cli.StringFlag{
			Name:  "bitcoin.host",
			Usage: "host:port of the bitcoind/btcd backend",
		},
		cli.StringFlag{
			Name:  "bitcoin.user",
			Usage: "bitcoind/btcd user name",
		},
		cli.StringFlag{
			Name:  "bitcoin.password",
			Usage: "bitcoind/btcd password",
		},
		cli.StringFlag{
			Name:  "bitcoin.tlspath",
			Usage: "path to btcd's TLS certificate",
		},
		cli.BoolFlag{
			Name:  "bitcoin.httppostmode",
			Usage: "use HTTP POST mode to connect to the backend",
		},
		cli.BoolFlag{
			Name:  "bitcoin.usetls",
			Usage: "use TLS to connect to the backend",
		},
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "chanclose"
	app.Usage = "report on how lnd's closed channels were resolved on " +
		"chain"
	app.Version = appVersion
	app.Flags = append([]cli.Flag{configFileFlag}, forwardedFlags...)
	app.Commands = []cli.Command{
		closesCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}
