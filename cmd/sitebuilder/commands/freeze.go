package commands

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"git.home.luguber.info/inful/sitebuilder/internal/freeze"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
)

// FreezeCmd implements the 'freeze' command.
type FreezeCmd struct {
	Out   string `short:"o" help:"Output directory, relative to the project directory" default:"public"`
	Force bool   `help:"Write into a non-empty directory not created by freeze"`
}

func (f *FreezeCmd) Run(g *Global, root *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	p, result, err := root.runBuild(ctx, g, "freeze")
	if err != nil {
		return err
	}
	printSummary(g.Out, result)

	routes, err := site.Routes(result, p.Config, p.Root)
	if err != nil {
		return err
	}
	out := f.Out
	if !filepath.IsAbs(out) {
		out = filepath.Join(p.Root, out)
	}
	protected := []string{
		filepath.Join(p.Root, filepath.FromSlash(p.Config.Content.Dir)),
		filepath.Join(p.Root, filepath.FromSlash(p.Config.Content.FilesDir)),
		filepath.Join(p.Root, filepath.FromSlash(p.Config.Cache.Dir)),
	}
	summary, err := freeze.Write(ctx, result, routes, out, freeze.Options{Force: f.Force, Protected: protected})
	if err != nil {
		return err
	}
	g.Logger.Debug("Freeze complete", logfields.Path(out), logfields.Count(len(summary.Written)))
	_, _ = fmt.Fprintf(g.Out, "Froze %d routes to %s: %d written, %d unchanged, %d removed\n",
		routes.Len(), out, len(summary.Written), len(summary.Unchanged), len(summary.Removed))
	return nil
}
