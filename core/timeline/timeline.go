// Package timeline merges the three message sources of a room session —
// paginated history, the live socket stream, and locally sent optimistic
// entries — into the single ordered, deduplicated conversation shown to
// the user.
//
// The same logical message can legitimately arrive twice: once through a
// history fetch and once through the live socket, or as an optimistic
// local entry later confirmed by the server under a slightly different
// server-assigned timestamp. Merge absorbs both cases.
package timeline

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wahajnintyeight/sync-board-mobile/core/clock"
	"github.com/wahajnintyeight/sync-board-mobile/core/message"
)

const (
	// DefaultPendingTTL is how long an unconfirmed optimistic entry keeps
	// being considered by Merge. After this it is dropped regardless of
	// confirmation, bounding unacknowledged state.
	DefaultPendingTTL = 60 * time.Second

	// DefaultMatchTolerance is the timestamp window within which a pending
	// entry is considered confirmed by a server copy of the same text. The
	// server assigns its own timestamp, so exact equality cannot be used.
	// Independent of DefaultPendingTTL.
	DefaultMatchTolerance = 3 * time.Second
)

// Config configures a Reconciler.
type Config struct {
	// PendingTTL overrides DefaultPendingTTL when positive.
	PendingTTL time.Duration

	// MatchTolerance overrides DefaultMatchTolerance when positive.
	MatchTolerance time.Duration

	// Clock for optimistic timestamps and TTL pruning. Defaults to the
	// system clock.
	Clock *clock.Clock

	// Logger for reconciler events. Falls back to slog.Default() if nil.
	Logger *slog.Logger
}

// Reconciler owns the pending optimistic buffer and produces merged
// timelines. Merging itself is a pure function of the inputs; the only
// state here is the pending list and the clock.
type Reconciler struct {
	cfg Config
	log *slog.Logger

	mu      sync.Mutex
	pending []message.Message
}

// New creates a Reconciler with the given configuration.
func New(cfg Config) *Reconciler {
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = DefaultPendingTTL
	}
	if cfg.MatchTolerance <= 0 {
		cfg.MatchTolerance = DefaultMatchTolerance
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		cfg: cfg,
		log: logger.WithGroup("timeline"),
	}
}

// RecordOptimisticSend synthesizes a pending entry for a just-sent message
// and returns it for immediate display, before any network acknowledgment.
func (r *Reconciler) RecordOptimisticSend(text, sender, deviceFingerprint string) message.Message {
	m := message.Message{
		ID:           uuid.NewString(),
		Text:         text,
		Sender:       sender,
		Timestamp:    r.cfg.Clock.Now(),
		HasTimestamp: true,
		IsAnonymous:  sender == "",
		DeviceInfo:   deviceFingerprint,
		Pending:      true,
	}

	r.mu.Lock()
	r.pending = append(r.pending, m)
	r.mu.Unlock()

	r.log.Debug("recorded optimistic send", "id", m.ID)
	return m
}

// Pending returns the optimistic entries still within the TTL window,
// pruning expired ones as a side effect.
func (r *Reconciler) Pending() []message.Message {
	cutoff := r.cfg.Clock.Now().Add(-r.cfg.PendingTTL)

	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.pending[:0]
	for _, m := range r.pending {
		if m.Timestamp.Before(cutoff) {
			r.log.Debug("optimistic entry expired", "id", m.ID)
			continue
		}
		kept = append(kept, m)
	}
	r.pending = kept

	out := make([]message.Message, len(r.pending))
	copy(out, r.pending)
	return out
}

// Merge produces the timeline from the given history and live streams plus
// the reconciler's current pending entries.
func (r *Reconciler) Merge(history, live []message.Message) []message.Message {
	return Merge(history, live, r.Pending(), r.cfg.MatchTolerance)
}

// Merge folds the three sources into one ordered, deduplicated timeline.
// It is a pure function: no hidden ordering state, so it can be recomputed
// deterministically whenever any input changes.
//
// The live stream is deduplicated against history under the exact dedup
// key (equal normalized timestamp and equal text). Pending entries are
// absorbed under the looser tol window, which recognizes a server echo
// carrying a slightly different server-assigned timestamp. The combined
// set is stable-sorted ascending by timestamp; entries without a
// timestamp sort last, keeping their relative order.
func Merge(history, live, pending []message.Message, tol time.Duration) []message.Message {
	combined := make([]message.Message, 0, len(history)+len(live)+len(pending))
	combined = append(combined, history...)

	for _, m := range live {
		if containsSame(combined, m, 0) {
			continue
		}
		combined = append(combined, m)
	}

	for _, p := range pending {
		if containsSame(combined, p, tol) {
			continue
		}
		combined = append(combined, p)
	}

	sort.SliceStable(combined, func(i, j int) bool {
		a, b := combined[i], combined[j]
		switch {
		case a.HasTimestamp && b.HasTimestamp:
			return a.Timestamp.Before(b.Timestamp)
		case a.HasTimestamp:
			return true // timestamped entries before unknown ones
		default:
			return false
		}
	})

	return combined
}

func containsSame(set []message.Message, m message.Message, tol time.Duration) bool {
	for _, existing := range set {
		if message.SameLogical(existing, m, tol) {
			return true
		}
	}
	return false
}
