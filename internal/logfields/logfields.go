package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyBuildID    = "build_id"
	KeyStage      = "stage"
	KeyState      = "state"
	KeyPath       = "path"
	KeyDocID      = "doc_id"
	KeyTarget     = "target"
	KeyFeedID     = "feed_id"
	KeyDurationMS = "duration_ms"
	KeyCache      = "cache"
	KeyCount      = "count"
	KeyOutcome    = "outcome"
	KeyBackend    = "backend"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func BuildID(id string) slog.Attr     { return slog.String(KeyBuildID, id) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func State(s string) slog.Attr        { return slog.String(KeyState, s) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func DocID(id string) slog.Attr       { return slog.String(KeyDocID, id) }
func Target(t string) slog.Attr       { return slog.String(KeyTarget, t) }
func FeedID(id string) slog.Attr      { return slog.String(KeyFeedID, id) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func Backend(b string) slog.Attr      { return slog.String(KeyBackend, b) }
func Outcome(o string) slog.Attr      { return slog.String(KeyOutcome, o) }

// Cache records whether a document was served from the cache ("hit") or rendered ("miss").
func Cache(hit bool) slog.Attr {
	if hit {
		return slog.String(KeyCache, "hit")
	}
	return slog.String(KeyCache, "miss")
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
