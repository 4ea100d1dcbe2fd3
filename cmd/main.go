package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/sig-0/p2prates/cmd/serve"
	"github.com/sig-0/p2prates/cmd/sql"
)

const rootHelp = `Runs the p2prates live VES exchange-rate feed.

The service polls the Binance P2P USDT/VES market (anchored to the
official BCV USD/VES rate), stores every sample, and pushes it to
live websocket subscribers`

// newRootCmd creates the p2prates command tree
func newRootCmd() *ffcli.Command {
	fs := flag.NewFlagSet("p2prates", flag.ExitOnError)

	return &ffcli.Command{
		Name:       "p2prates",
		ShortUsage: "p2prates <serve | sql> [flags] [<arg>...]",
		LongHelp:   rootHelp,
		FlagSet:    fs,
		Exec: func(_ context.Context, _ []string) error {
			return flag.ErrHelp
		},
		Subcommands: []*ffcli.Command{
			serve.NewServeCmd(),
			sql.NewSQLCmd(),
		},
	}
}

func main() {
	if err := newRootCmd().ParseAndRun(context.Background(), os.Args[1:]); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "p2prates: %s\n", err)

		os.Exit(1)
	}
}
