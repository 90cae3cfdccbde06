package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/lightninglabs/chanclose"
	"github.com/urfave/cli"
)

// fatal logs an error and exits.
func fatal(err error) {
	_, _ = fmt.Fprintf(os.Stderr, "[chanclose] %v\n", err)
	os.Exit(1)
}

func printJSON(resp interface{}) {
	b, err := json.Marshal(resp)
	if err != nil {
		fatal(err)
	}

	var out bytes.Buffer
	_ = json.Indent(&out, b, "", "\t")
	out.WriteString("\n")
	_, _ = out.WriteTo(os.Stdout)
}

// loadConfig loads our config from our config file, with any settings
// provided on the command line taking precedence.
func loadConfig(ctx *cli.Context) (*chanclose.Config, error) {
	return chanclose.LoadConfig(
		ctx.GlobalString(configFileFlag.Name), forwardedArgs(ctx),
	)
}

// forwardedArgs returns the config parser arguments for each of our
// forwarded flags that was set on the command line.
func forwardedArgs(ctx *cli.Context) []string {
	var args []string
	for _, flag := range forwardedFlags {
		name := flag.GetName()
		if !ctx.GlobalIsSet(name) {
			continue
		}

		switch flag.(type) {
		// Boolean options do not take a value, so we only forward
		// them when they are enabled.
		case cli.BoolFlag:
			if ctx.GlobalBool(name) {
				args = append(args, "--"+name)
			}

		default:
			args = append(
				args, fmt.Sprintf("--%v=%v", name,
					ctx.GlobalString(name)),
			)
		}
	}

	return args
}
