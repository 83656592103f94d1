package room

import (
	"context"
	"log/slog"
	"sync"

	"github.com/wahajnintyeight/sync-board-mobile/api"
	"github.com/wahajnintyeight/sync-board-mobile/core/message"
)

// Fetcher loads a page of room history. *api.Client satisfies it; tests
// substitute a fake.
type Fetcher interface {
	Messages(ctx context.Context, roomCode string, page, limit int) (*api.MessagesPage, error)
}

// DefaultPageSize is the history page size requested from the backend.
const DefaultPageSize = 10

// TopThreshold is the scroll offset, in pixels from the top of the
// history, at or under which older messages are fetched.
const TopThreshold = 20

// PaginationConfig configures a Pagination controller.
type PaginationConfig struct {
	// Fetcher loads history pages. Required.
	Fetcher Fetcher

	// PageSize is the per-page message count. Default: DefaultPageSize.
	PageSize int

	// Logger for fetch events. Falls back to slog.Default() if nil.
	Logger *slog.Logger
}

// PageCursor is the pagination position after the most recent fetch.
type PageCursor struct {
	// Page is the highest page loaded so far, 0 before the first fetch.
	Page int
	// HasMore reports whether the backend has older pages.
	HasMore bool
	// TotalCount is the room's total message count as last reported.
	TotalCount int
}

// Pagination accumulates room history page by page. Page one replaces the
// buffer, later pages append; older messages therefore live at the end of
// History, mirroring the fetch order. A single in-flight fetch is allowed
// at a time.
type Pagination struct {
	cfg PaginationConfig
	log *slog.Logger

	mu      sync.Mutex
	history []message.Message
	cursor  PageCursor
	loading bool
	lastErr error
}

// NewPagination creates a history pagination controller.
func NewPagination(cfg PaginationConfig) *Pagination {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pagination{
		cfg: cfg,
		log: logger.WithGroup("pagination"),
	}
}

// FetchPage loads the given page of history for roomCode. Page one
// replaces the accumulated buffer; any later page appends to it. On
// failure the buffer and cursor are left untouched and the error is both
// returned and retained for Err. The loading flag clears on every path.
func (p *Pagination) FetchPage(ctx context.Context, roomCode string, page int) error {
	_, err := p.fetch(ctx, roomCode, page)
	return err
}

// fetch reports whether it actually ran; a fetch already in flight makes
// it a no-op.
func (p *Pagination) fetch(ctx context.Context, roomCode string, page int) (bool, error) {
	p.mu.Lock()
	if p.loading {
		p.mu.Unlock()
		p.log.Debug("fetch already in flight, skipping", "page", page)
		return false, nil
	}
	p.loading = true
	p.lastErr = nil
	p.mu.Unlock()

	p.log.Debug("fetching history", "room_code", roomCode, "page", page)
	res, err := p.cfg.Fetcher.Messages(ctx, roomCode, page, p.cfg.PageSize)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.loading = false

	if err != nil {
		p.lastErr = err
		p.log.Warn("history fetch failed", "page", page, "error", err)
		return true, err
	}

	if page <= 1 {
		p.history = res.Messages
	} else {
		p.history = append(p.history, res.Messages...)
	}
	p.cursor = PageCursor{
		Page:       page,
		HasMore:    res.HasMore,
		TotalCount: res.TotalMessages,
	}
	return true, nil
}

// LoadMore fetches the next page when one exists and no fetch is in
// flight; otherwise it is a no-op. Returns whether a fetch happened,
// which can still come back false when a concurrent fetch wins the race
// after the gate check.
func (p *Pagination) LoadMore(ctx context.Context, roomCode string) bool {
	p.mu.Lock()
	if p.loading || !p.cursor.HasMore {
		p.mu.Unlock()
		return false
	}
	next := p.cursor.Page + 1
	p.mu.Unlock()

	started, err := p.fetch(ctx, roomCode, next)
	if err != nil {
		p.log.Debug("load more failed", "page", next, "error", err)
	}
	return started
}

// ShouldLoadMore reports whether a scroll position this close to the top
// of the history should trigger LoadMore.
func (p *Pagination) ShouldLoadMore(offsetFromTop float64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return offsetFromTop <= TopThreshold && p.cursor.HasMore && !p.loading
}

// History returns a copy of the accumulated history in fetch order:
// page one first, older pages after it.
func (p *Pagination) History() []message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]message.Message, len(p.history))
	copy(out, p.history)
	return out
}

// Cursor returns the position after the most recent successful fetch.
func (p *Pagination) Cursor() PageCursor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Loading reports whether a fetch is in flight.
func (p *Pagination) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

// Err returns the most recent fetch error, nil after a success.
func (p *Pagination) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}
