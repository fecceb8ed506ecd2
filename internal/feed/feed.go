// Package feed maintains a monotonically-extendable list of books fetched
// from a paged endpoint, with pull-to-refresh (replace) and infinite-scroll
// (append) semantics.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"bookworm/internal/gateway"
	"bookworm/pkg/domain"
)

// Scope selects which listing a loader paginates.
type Scope string

const (
	// ScopeAll is the global feed of shared books.
	ScopeAll Scope = "/books"
	// ScopeMine is the current user's own books.
	ScopeMine Scope = "/books/user"
)

// DefaultPageSize matches the server's page size.
const DefaultPageSize = 2

// Loader is the pagination cursor for one listing view. Create one per
// screen activation and Close it when the screen goes away; loaders are not
// shared across screens.
type Loader struct {
	gw       *gateway.Gateway
	logger   *slog.Logger
	scope    Scope
	pageSize int

	mu         sync.Mutex
	books      []domain.Book
	page       int
	hasMore    bool
	loading    bool
	refreshing bool
	closed     bool
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithPageSize overrides the page size requested from the server.
func WithPageSize(n int) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.pageSize = n
		}
	}
}

// WithLogger sets the loader logger.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) { l.logger = logger }
}

// NewLoader constructs an empty cursor for the given scope.
func NewLoader(gw *gateway.Gateway, scope Scope, opts ...LoaderOption) *Loader {
	l := &Loader{
		gw:       gw,
		logger:   slog.Default(),
		scope:    scope,
		pageSize: DefaultPageSize,
		hasMore:  true,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type pageResponse struct {
	// Pointer so a response without a books field is distinguishable from an
	// empty page; the former is a no-op.
	Books      *[]domain.Book `json:"books"`
	TotalPages int            `json:"totalPages"`
}

// Load fetches one explicit 1-based page. A refresh replaces the list and
// resets the cursor to page 1; otherwise the page is appended in server
// order. The call is a no-op while another fetch is in flight, after Close,
// or for a non-positive page. Errors are logged and swallowed: the list keeps
// its last good state and the flags always come back down.
func (l *Loader) Load(ctx context.Context, page int, isRefresh bool) {
	if page < 1 {
		l.logger.Warn("ignoring load for non-positive page", "page", page)
		return
	}

	l.mu.Lock()
	if l.closed || l.loading || l.refreshing {
		l.mu.Unlock()
		return
	}
	if isRefresh {
		l.refreshing = true
	} else {
		l.loading = true
	}
	scope, size := l.scope, l.pageSize
	l.mu.Unlock()

	var resp pageResponse
	path := fmt.Sprintf("%s?page=%d&limit=%d", scope, page, size)
	err := l.gw.DoJSON(ctx, http.MethodGet, path, nil, &resp)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.loading = false
	l.refreshing = false
	if l.closed {
		return
	}
	if err != nil {
		l.logger.Warn("load books failed", "scope", scope, "page", page, "err", err)
		return
	}
	if resp.Books == nil {
		return
	}

	if isRefresh {
		l.books = append([]domain.Book(nil), (*resp.Books)...)
		l.page = 1
	} else {
		l.books = append(l.books, (*resp.Books)...)
		l.page = page
	}
	l.hasMore = page < resp.TotalPages
}

// Refresh restarts the cursor from page 1, replacing the list.
func (l *Loader) Refresh(ctx context.Context) {
	l.Load(ctx, 1, true)
}

// NextPage fetches the page after the last loaded one. No-op when there is
// nothing more to load or a fetch is already in flight.
func (l *Loader) NextPage(ctx context.Context) {
	l.mu.Lock()
	if l.closed || !l.hasMore || l.loading || l.refreshing {
		l.mu.Unlock()
		return
	}
	next := l.page + 1
	l.mu.Unlock()
	l.Load(ctx, next, false)
}

// Books returns a copy of the accumulated items in server order.
func (l *Loader) Books() []domain.Book {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Book(nil), l.books...)
}

// HasMore reports whether pages remain beyond the last loaded one.
func (l *Loader) HasMore() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hasMore
}

// Loading reports whether an append fetch is in flight.
func (l *Loader) Loading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loading
}

// Refreshing reports whether a refresh fetch is in flight.
func (l *Loader) Refreshing() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refreshing
}

// Remove drops the item with the given id from the list, reporting whether
// anything was removed. Used after a successful delete.
func (l *Loader) Remove(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.books[:0]
	removed := false
	for _, b := range l.books {
		if b.ID == id {
			removed = true
			continue
		}
		kept = append(kept, b)
	}
	l.books = kept
	return removed
}

// Close marks the cursor dead. A fetch completing afterwards still clears its
// flag but no longer mutates the list.
func (l *Loader) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
}
