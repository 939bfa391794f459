package main

import (
	"fmt"
	"os"

	"git.home.luguber.info/inful/sitebuilder/cmd/sitebuilder/commands"
	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

func main() {
	cli := &commands.CLI{}
	g := commands.NewGlobal()

	parser, err := commands.New(cli)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(errors.ExitInternal)
	}
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	if err := ctx.Run(g, cli); err != nil {
		errors.NewCLIErrorAdapter(cli.Verbose, g.Logger).HandleError(err)
	}
}
