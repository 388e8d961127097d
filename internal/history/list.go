// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history implements the conversation browser: the searchable,
// time-windowed list of past conversations and the paginated loader for a
// single conversation's transcript.
package history

import (
	"context"
	"sync"
	"time"

	"github.com/campreserv/chatkit/internal/api"
	"github.com/campreserv/chatkit/internal/model"
)

// =============================================================================
// TIME WINDOWS
// =============================================================================

// Window restricts the conversation list to a recency range.
type Window string

const (
	WindowWeek    Window = "7d"
	WindowMonth   Window = "30d"
	WindowQuarter Window = "90d"
	WindowAll     Window = "all"
)

// Windows lists the selectable windows in display order.
var Windows = []Window{WindowWeek, WindowMonth, WindowQuarter, WindowAll}

// Since returns the cutoff time for the window, or zero for WindowAll.
func (w Window) Since(now time.Time) time.Time {
	switch w {
	case WindowWeek:
		return now.AddDate(0, 0, -7)
	case WindowMonth:
		return now.AddDate(0, 0, -30)
	case WindowQuarter:
		return now.AddDate(0, 0, -90)
	default:
		return time.Time{}
	}
}

// Label returns the window's display label.
func (w Window) Label() string {
	switch w {
	case WindowWeek:
		return "Last 7 days"
	case WindowMonth:
		return "Last 30 days"
	case WindowQuarter:
		return "Last 90 days"
	default:
		return "All time"
	}
}

// =============================================================================
// CONVERSATION LIST
// =============================================================================

// ConversationList holds the filtered, paginated list of past
// conversations. Filter changes trigger a reload; responses from a
// superseded reload are discarded so a slow query can never overwrite the
// results of a newer one.
type ConversationList struct {
	client *api.Client

	// now is injectable for window cutoff tests.
	now func() time.Time

	mu         sync.Mutex
	query      string
	window     Window
	items      []model.ConversationSummary
	nextCursor string
	loading    bool
	errMsg     string

	// generation counts filter changes. A fetch tagged with an older
	// generation is stale and its result is dropped.
	generation uint64

	updates chan struct{}
}

// NewConversationList creates a list over the backend client.
func NewConversationList(client *api.Client) *ConversationList {
	return &ConversationList{
		client:  client,
		now:     time.Now,
		window:  WindowMonth,
		updates: make(chan struct{}, 1),
	}
}

// Updates returns the change signal channel.
func (l *ConversationList) Updates() <-chan struct{} {
	return l.updates
}

func (l *ConversationList) notify() {
	select {
	case l.updates <- struct{}{}:
	default:
	}
}

// SetQuery updates the search text and reloads.
func (l *ConversationList) SetQuery(ctx context.Context, query string) {
	l.mu.Lock()
	if l.query == query {
		l.mu.Unlock()
		return
	}
	l.query = query
	l.mu.Unlock()
	l.Refresh(ctx)
}

// SetWindow updates the recency window and reloads.
func (l *ConversationList) SetWindow(ctx context.Context, w Window) {
	l.mu.Lock()
	if l.window == w {
		l.mu.Unlock()
		return
	}
	l.window = w
	l.mu.Unlock()
	l.Refresh(ctx)
}

// Refresh reloads the first page for the current filters. Any in-flight
// load becomes stale and its response is discarded on arrival. Accumulated
// items and the pagination cursor are cleared up front: the old filter's
// rows must not linger while the new first page is in flight.
func (l *ConversationList) Refresh(ctx context.Context) {
	l.mu.Lock()
	l.generation++
	gen := l.generation
	req := api.ListRequest{
		Query: l.query,
		Since: l.window.Since(l.now()),
	}
	l.items = nil
	l.nextCursor = ""
	l.loading = true
	l.errMsg = ""
	l.mu.Unlock()
	l.notify()

	go func() {
		page, err := l.client.ListConversations(ctx, req)

		l.mu.Lock()
		defer l.mu.Unlock()
		if gen != l.generation {
			// A newer refresh superseded this one.
			return
		}
		l.loading = false
		if err != nil {
			l.errMsg = err.Error()
		} else {
			l.items = page.Items
			l.nextCursor = page.NextCursor
		}
		l.notify()
	}()
}

// LoadMore appends the next page for the current filters.
func (l *ConversationList) LoadMore(ctx context.Context) {
	l.mu.Lock()
	if l.loading || l.nextCursor == "" {
		l.mu.Unlock()
		return
	}
	gen := l.generation
	req := api.ListRequest{
		Query:  l.query,
		Since:  l.window.Since(l.now()),
		Cursor: l.nextCursor,
	}
	l.loading = true
	l.mu.Unlock()
	l.notify()

	go func() {
		page, err := l.client.ListConversations(ctx, req)

		l.mu.Lock()
		defer l.mu.Unlock()
		if gen != l.generation {
			return
		}
		l.loading = false
		if err != nil {
			l.errMsg = err.Error()
		} else {
			l.items = append(l.items, page.Items...)
			l.nextCursor = page.NextCursor
		}
		l.notify()
	}()
}

// Items returns a snapshot of the loaded conversations.
func (l *ConversationList) Items() []model.ConversationSummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.ConversationSummary(nil), l.items...)
}

// Query returns the current search text.
func (l *ConversationList) Query() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.query
}

// ActiveWindow returns the current recency window.
func (l *ConversationList) ActiveWindow() Window {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.window
}

// IsLoading reports whether a page load is in flight.
func (l *ConversationList) IsLoading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loading
}

// HasMore reports whether another page is available.
func (l *ConversationList) HasMore() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextCursor != ""
}

// Error returns the last load failure, empty when the last load succeeded.
func (l *ConversationList) Error() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.errMsg
}
