package linkverify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/sitebuilder/internal/docmodel"
	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/retry"
)

// Notifier receives the broken findings of a build.
type Notifier interface {
	NotifyBroken(ctx context.Context, buildID string, report *Report) error
	Close() error
}

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// NATSPublisher publishes one BrokenLinkEvent per broken finding.
type NATSPublisher struct {
	conn    conn
	subject string
	baseURL string
	retry   retry.Policy
	now     func() time.Time
}

// NewNATSPublisher connects to url. Events go to subject; baseURL is used to
// fill in source page URLs.
func NewNATSPublisher(url, subject, baseURL string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("sitebuilder"),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryNotify, "failed to connect to NATS").
			WithContext("url", url).Build()
	}

	slog.Info("NATS publisher initialized for broken links",
		slog.String("url", url),
		slog.String("subject", subject))
	return newPublisher(nc, subject, baseURL), nil
}

func newPublisher(c conn, subject, baseURL string) *NATSPublisher {
	return &NATSPublisher{
		conn:    c,
		subject: subject,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		retry:   retry.NewPolicy(retry.DefaultPolicy().Mode, 0, 0, 0),
		now:     time.Now,
	}
}

// WithRetry retries an unacknowledged flush according to policy.
func (p *NATSPublisher) WithRetry(policy retry.Policy) *NATSPublisher {
	p.retry = policy
	return p
}

// NotifyBroken publishes every broken finding of report and waits for the
// server to acknowledge them.
func (p *NATSPublisher) NotifyBroken(ctx context.Context, buildID string, report *Report) error {
	broken := report.Broken()
	if len(broken) == 0 {
		return nil
	}
	now := p.now().UTC()
	for _, f := range broken {
		sourceURL := ""
		if p.baseURL != "" {
			sourceURL = p.baseURL + docmodel.PageRoute(f.SourceID)
		}
		data, err := json.Marshal(NewBrokenLinkEvent(f, buildID, sourceURL, now))
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		if err := p.conn.Publish(p.subject, data); err != nil {
			return errors.WrapError(err, errors.CategoryNotify, "failed to publish broken link event").
				WithContext("subject", p.subject).Build()
		}
	}

	flush := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return p.conn.FlushWithContext(ctx)
	}
	onRetry := func(attempt int, err error) {
		slog.Debug("Retrying NATS flush", slog.Int("attempt", attempt), logfields.Error(err))
	}
	if err := p.retry.Do(ctx, flush, onRetry); err != nil {
		return errors.WrapError(err, errors.CategoryNotify, "failed to flush NATS connection").
			WithContext("retries", p.retry.MaxRetries).Build()
	}

	slog.Debug("Published broken link events",
		logfields.BuildID(buildID),
		logfields.Count(len(broken)))
	return nil
}

// Close closes the NATS connection.
func (p *NATSPublisher) Close() error {
	if p.conn != nil {
		p.conn.Close()
	}
	return nil
}
