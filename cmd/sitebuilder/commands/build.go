package commands

import (
	"context"
	"os/signal"
	"syscall"
)

// BuildCmd implements the 'build' command. It refreshes the render cache and
// reports the result without writing output files.
type BuildCmd struct {
	Problems bool `name:"problems" help:"List broken links and render errors"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	_, result, err := root.runBuild(ctx, g, "build")
	if err != nil {
		return err
	}
	printSummary(g.Out, result)
	if b.Problems {
		printProblems(g.Out, result)
	}
	return nil
}
