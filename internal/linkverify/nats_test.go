package linkverify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/docmodel"
	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/retry"
)

type fakeConn struct {
	published  [][]byte
	subjects   []string
	flushes    int
	flushFails int
	publishErr error
	closed     bool
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	if c.publishErr != nil {
		return c.publishErr
	}
	c.subjects = append(c.subjects, subject)
	c.published = append(c.published, data)
	return nil
}

func (c *fakeConn) FlushWithContext(context.Context) error {
	c.flushes++
	if c.flushes <= c.flushFails {
		return errors.New("nats: flush timeout")
	}
	return nil
}

func (c *fakeConn) Close() { c.closed = true }

func brokenReport() *Report {
	a := page("a", "A", nil, wiki("Missing", ""), wiki("B", ""))
	b := page("b", "B", nil)
	return Validate([]*docmodel.Document{a, b}, nil)
}

func TestNATSPublisher_PublishesBrokenFindings(t *testing.T) {
	c := &fakeConn{}
	p := newPublisher(c, "sitebuilder.links.broken", "https://example.com/blog/")
	p.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	a := page("a", "A", nil, wiki("B", "x"), wiki("a", ""))
	report := Validate([]*docmodel.Document{a}, nil)
	require.NoError(t, p.NotifyBroken(t.Context(), "build-1", report))

	require.Equal(t, []string{"sitebuilder.links.broken"}, c.subjects)
	require.Equal(t, 1, c.flushes)

	var ev BrokenLinkEvent
	require.NoError(t, json.Unmarshal(c.published[0], &ev))
	require.Equal(t, "B#x", ev.Raw)
	require.Equal(t, OutcomeBrokenTarget, ev.Outcome)
	require.Equal(t, "https://example.com/blog/a", ev.SourceURL)
	require.Equal(t, "build-1", ev.BuildID)
	require.True(t, ev.Wiki)
	require.True(t, ev.Timestamp.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))

	require.NoError(t, p.Close())
	require.True(t, c.closed)
}

func TestNATSPublisher_NothingBroken(t *testing.T) {
	c := &fakeConn{publishErr: errors.New("unreachable")}
	p := newPublisher(c, "s", "")
	require.NoError(t, p.NotifyBroken(t.Context(), "b-1", &Report{}))

	report := Validate([]*docmodel.Document{page("a", "A", nil)}, nil)
	require.NoError(t, p.NotifyBroken(t.Context(), "b-1", report))
	require.Empty(t, c.published)
	require.Zero(t, c.flushes)
}

func TestNATSPublisher_PublishFailure(t *testing.T) {
	c := &fakeConn{publishErr: errors.New("connection closed")}
	p := newPublisher(c, "s", "")

	err := p.NotifyBroken(t.Context(), "b-1", brokenReport())
	require.Error(t, err)
	require.Equal(t, ferrors.CategoryNotify, ferrors.GetCategory(err))
	require.Zero(t, c.flushes)
}

func TestNATSPublisher_RetriesFlush(t *testing.T) {
	c := &fakeConn{flushFails: 1}
	p := newPublisher(c, "s", "").
		WithRetry(retry.NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 2))

	require.NoError(t, p.NotifyBroken(t.Context(), "b-1", brokenReport()))
	require.Equal(t, 2, c.flushes)
	require.Len(t, c.published, 1, "events are published once")
}

func TestNATSPublisher_FlushFails(t *testing.T) {
	c := &fakeConn{flushFails: 10}
	p := newPublisher(c, "s", "")

	err := p.NotifyBroken(t.Context(), "b-1", brokenReport())
	require.Error(t, err)
	require.Equal(t, 1, c.flushes)
	require.Equal(t, ferrors.CategoryNotify, ferrors.GetCategory(err))
}
