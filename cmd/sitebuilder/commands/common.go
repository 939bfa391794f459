package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/sitebuilder/internal/build"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/linkverify"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/observability"
	"git.home.luguber.info/inful/sitebuilder/internal/retry"
	"git.home.luguber.info/inful/sitebuilder/internal/version"
)

// Global carries the process-wide collaborators of a command.
type Global struct {
	Logger *slog.Logger
	// Out receives command output, Err receives log records.
	Out io.Writer
	Err io.Writer
}

// NewGlobal returns the defaults used by the binary.
func NewGlobal() *Global {
	return &Global{Logger: slog.Default(), Out: os.Stdout, Err: os.Stderr}
}

// CLI definition & global flags.
type CLI struct {
	Root    string           `short:"r" help:"Project directory" default:"." type:"path"`
	Config  string           `short:"c" help:"Configuration file (default: <root>/site.yaml)" type:"path"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	NoCache bool             `name:"no-cache" help:"Neither read nor write the persistent render cache"`
	Rebuild bool             `help:"Render every page regardless of the cache; the cache is refreshed"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build  BuildCmd  `cmd:"" default:"1" help:"Build the site and report the result"`
	Check  CheckCmd  `cmd:"" help:"Build the site and report broken links and render errors"`
	Freeze FreezeCmd `cmd:"" help:"Build the site and write it to a directory"`
	Serve  ServeCmd  `cmd:"" help:"Serve the site and rebuild it when sources change"`
}

// New creates the command-line parser.
func New(cli *CLI, options ...kong.Option) (*kong.Kong, error) {
	opts := []kong.Option{
		kong.Name("sitebuilder"),
		kong.Description("Incremental static site builder for Markdown projects."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	}
	return kong.New(cli, append(opts, options...)...)
}

// project is a loaded project directory.
type project struct {
	Root       string
	ConfigPath string
	Config     *config.Config
}

// loadProject resolves the project root, loads its configuration and sets up
// logging from it.
func (c *CLI) loadProject(g *Global) (*project, error) {
	root, err := filepath.Abs(c.Root)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "invalid project directory").Fatal().Build()
	}
	if st, err := os.Stat(root); err != nil || !st.IsDir() {
		return nil, errors.NewError(errors.CategoryFileSystem, "project directory not readable").
			Fatal().
			WithContext("root", root).
			Build()
	}

	cfg, err := config.Load(root, c.Config)
	if err != nil {
		return nil, err
	}

	level, err := observability.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "invalid logging level").Fatal().Build()
	}
	if c.Verbose {
		level = slog.LevelDebug
	}
	g.Logger = observability.NewLogger(g.Err, level, cfg.Logging.Format)
	slog.SetDefault(g.Logger)

	configPath := c.Config
	if configPath == "" {
		configPath = filepath.Join(root, config.FileName)
	}
	return &project{Root: root, ConfigPath: configPath, Config: cfg}, nil
}

// newService creates the build service of a project. The returned function
// releases the broken-link notifier.
func (c *CLI) newService(g *Global, p *project) (*build.DefaultBuildService, func()) {
	svc := build.NewBuildService().WithLogger(g.Logger)
	if p.Config.Notify.NATSURL == "" {
		return svc, func() {}
	}
	pub, err := linkverify.NewNATSPublisher(p.Config.Notify.NATSURL, p.Config.Notify.Subject, p.Config.Site.BaseURL)
	if err != nil {
		g.Logger.Warn("Broken link notifications disabled", logfields.Error(err))
		return svc, func() {}
	}
	pub.WithRetry(retry.FromNotify(p.Config.Notify))
	return svc.WithNotifier(pub), func() { _ = pub.Close() }
}

func (c *CLI) buildOptions(mode string) build.BuildOptions {
	return build.BuildOptions{Rebuild: c.Rebuild, NoCache: c.NoCache, Mode: mode}
}

// runBuild loads the project and builds it once.
func (c *CLI) runBuild(ctx context.Context, g *Global, mode string) (*project, *build.BuildResult, error) {
	p, err := c.loadProject(g)
	if err != nil {
		return nil, nil, err
	}
	svc, release := c.newService(g, p)
	defer release()

	result, err := svc.Run(ctx, build.BuildRequest{Root: p.Root, Config: p.Config, Options: c.buildOptions(mode)})
	if err != nil {
		if ctx.Err() != nil {
			return p, result, errors.WrapError(err, errors.CategoryCanceled, "build canceled").Build()
		}
		return p, result, err
	}
	return p, result, nil
}

// printSummary writes a one-line account of a build.
func printSummary(w io.Writer, r *build.BuildResult) {
	broken := 0
	if r.Report != nil {
		broken = len(r.Report.Broken())
	}
	_, _ = fmt.Fprintf(w, "Built %d pages (%d rendered, %d reused), %d attachments, %d feeds in %s: %s",
		len(r.Documents), r.Rendered, r.Reused, len(r.Attachments), len(r.Feeds), r.Duration.Round(time.Millisecond), r.Status)
	if broken > 0 || len(r.RenderErrors) > 0 {
		_, _ = fmt.Fprintf(w, " (%d broken links, %d render errors)", broken, len(r.RenderErrors))
	}
	_, _ = fmt.Fprintln(w)
}

// printProblems writes every broken link and render error.
func printProblems(w io.Writer, r *build.BuildResult) {
	if r.Report != nil {
		_ = r.Report.WriteBroken(w)
	}
	for _, e := range r.RenderErrors {
		_, _ = fmt.Fprintln(w, e.String())
	}
}
