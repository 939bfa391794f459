package commands

import (
	"context"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

// CheckCmd implements the 'check' command: a build that fails when any link
// is broken or any page has render errors.
type CheckCmd struct{}

func (c *CheckCmd) Run(g *Global, root *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	_, result, err := root.runBuild(ctx, g, "check")
	if err != nil {
		return err
	}
	printProblems(g.Out, result)
	printSummary(g.Out, result)

	broken := len(result.Report.Broken())
	if broken == 0 && len(result.RenderErrors) == 0 {
		return nil
	}
	return errors.ValidationError("site has problems").
		WithContext("broken_links", broken).
		WithContext("render_errors", len(result.RenderErrors)).
		Build()
}
