package commands

import (
	"context"
	"os/signal"
	"syscall"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
	"git.home.luguber.info/inful/sitebuilder/internal/preview"
)

// ServeCmd implements the 'serve' command.
type ServeCmd struct {
	Addr string `short:"a" help:"Listen address (default: preview.addr)"`
}

func (s *ServeCmd) Run(g *Global, root *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	p, err := root.loadProject(g)
	if err != nil {
		return err
	}
	if s.Addr != "" {
		p.Config.Preview.Addr = s.Addr
	}

	reg := prom.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	svc, release := root.newService(g, p)
	defer release()
	svc.WithRecorder(metrics.NewPrometheusRecorder(reg))

	server := preview.NewServer(p.Root, p.Config, svc,
		preview.WithRegistry(reg),
		preview.WithLogger(g.Logger),
		preview.WithBuildOptions(root.buildOptions("preview")))
	return server.Run(ctx, p.ConfigPath)
}
