// Package metrics provides build metrics for sitebuilder.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics cost nothing unless a real recorder is supplied:
//
//	svc := build.NewService(cfg, build.WithRecorder(metrics.NewPrometheusRecorder(reg)))
//
// The preview server exposes the registry at /metrics through HTTPHandler.
package metrics
