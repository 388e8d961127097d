// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/campreserv/chatkit/internal/api"
	"github.com/campreserv/chatkit/internal/model"
)

func testClient(baseURL string) *api.Client {
	return api.NewClient(baseURL, api.Scope{
		CampgroundID:  "cg_1",
		Mode:          api.ModeStaff,
		ParticipantID: "staff_1",
		AuthToken:     "tok_test",
		SessionID:     "sess_test",
	}).WithMaxRetries(1)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

// =============================================================================
// WINDOW TESTS
// =============================================================================

func TestWindow_Since(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		window Window
		want   time.Time
	}{
		{WindowWeek, now.AddDate(0, 0, -7)},
		{WindowMonth, now.AddDate(0, 0, -30)},
		{WindowQuarter, now.AddDate(0, 0, -90)},
		{WindowAll, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(string(tt.window), func(t *testing.T) {
			if got := tt.window.Since(now); !got.Equal(tt.want) {
				t.Errorf("Since = %v, want %v", got, tt.want)
			}
		})
	}
}

// =============================================================================
// CONVERSATION LIST TESTS
// =============================================================================

func TestConversationList_RefreshAndPaginate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("cursor") {
		case "":
			json.NewEncoder(w).Encode(api.ConversationPage{
				Items:      []model.ConversationSummary{{ID: "conv_1", Title: "Site change"}},
				NextCursor: "page2",
			})
		case "page2":
			json.NewEncoder(w).Encode(api.ConversationPage{
				Items: []model.ConversationSummary{{ID: "conv_2", Title: "Late checkout"}},
			})
		}
	}))
	defer server.Close()

	list := NewConversationList(testClient(server.URL))
	list.Refresh(context.Background())
	waitFor(t, func() bool { return !list.IsLoading() && len(list.Items()) == 1 })

	if !list.HasMore() {
		t.Fatal("expected another page")
	}
	list.LoadMore(context.Background())
	waitFor(t, func() bool { return len(list.Items()) == 2 })

	items := list.Items()
	if items[0].ID != "conv_1" || items[1].ID != "conv_2" {
		t.Errorf("items = %+v", items)
	}
	if list.HasMore() {
		t.Error("no more pages expected")
	}
}

func TestConversationList_WindowCutoffSent(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	var gotSince string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotSince = r.URL.Query().Get("since")
		mu.Unlock()
		json.NewEncoder(w).Encode(api.ConversationPage{})
	}))
	defer server.Close()

	list := NewConversationList(testClient(server.URL))
	list.now = func() time.Time { return now }

	list.SetWindow(context.Background(), WindowWeek)
	waitFor(t, func() bool { return !list.IsLoading() })

	mu.Lock()
	defer mu.Unlock()
	want := now.AddDate(0, 0, -7).Format(time.RFC3339)
	if gotSince != want {
		t.Errorf("since = %q, want %q", gotSince, want)
	}
}

func TestConversationList_StaleResponseDiscarded(t *testing.T) {
	// A slow response for the old query must not overwrite the results of
	// a newer one, regardless of arrival order.
	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("query") {
		case "slow":
			close(firstStarted)
			<-releaseFirst
			json.NewEncoder(w).Encode(api.ConversationPage{
				Items: []model.ConversationSummary{{ID: "stale", Title: "stale result"}},
			})
		case "fast":
			json.NewEncoder(w).Encode(api.ConversationPage{
				Items: []model.ConversationSummary{{ID: "fresh", Title: "fresh result"}},
			})
		}
	}))
	defer server.Close()

	list := NewConversationList(testClient(server.URL))

	list.SetQuery(context.Background(), "slow")
	<-firstStarted
	list.SetQuery(context.Background(), "fast")
	waitFor(t, func() bool {
		items := list.Items()
		return len(items) == 1 && items[0].ID == "fresh"
	})

	close(releaseFirst)
	// Give the stale response a chance to arrive, then confirm it was
	// dropped.
	time.Sleep(50 * time.Millisecond)
	items := list.Items()
	if len(items) != 1 || items[0].ID != "fresh" {
		t.Errorf("stale response overwrote fresh results: %+v", items)
	}
}

func TestConversationList_RefreshClearsItemsBeforeLoad(t *testing.T) {
	// Changing the query must not leave the old rows (or a stale
	// pagination cursor) visible while the new first page is in flight.
	started := make(chan struct{})
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("query") {
		case "":
			json.NewEncoder(w).Encode(api.ConversationPage{
				Items:      []model.ConversationSummary{{ID: "old_1", Title: "old row"}},
				NextCursor: "old_page2",
			})
		case "firewood":
			close(started)
			<-release
			json.NewEncoder(w).Encode(api.ConversationPage{
				Items: []model.ConversationSummary{{ID: "new_1", Title: "new row"}},
			})
		}
	}))
	defer server.Close()

	list := NewConversationList(testClient(server.URL))
	list.Refresh(context.Background())
	waitFor(t, func() bool { return len(list.Items()) == 1 && list.HasMore() })

	list.SetQuery(context.Background(), "firewood")
	<-started

	if items := list.Items(); len(items) != 0 {
		t.Errorf("old rows still visible while new query loads: %+v", items)
	}
	if list.HasMore() {
		t.Error("stale cursor still reports more pages while new query loads")
	}
	if !list.IsLoading() {
		t.Error("expected loading while the new first page is in flight")
	}

	close(release)
	waitFor(t, func() bool {
		items := list.Items()
		return len(items) == 1 && items[0].ID == "new_1"
	})
}

func TestConversationList_ErrorSurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"code":"internal","message":"backend down"}}`))
	}))
	defer server.Close()

	list := NewConversationList(testClient(server.URL))
	list.Refresh(context.Background())
	waitFor(t, func() bool { return !list.IsLoading() })

	if list.Error() == "" {
		t.Error("expected load error to be surfaced")
	}
}

// =============================================================================
// MESSAGE HISTORY TESTS
// =============================================================================

func TestMessageHistory_LoadAndPrependOlder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/conversations/conv_1/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		switch r.URL.Query().Get("cursor") {
		case "":
			json.NewEncoder(w).Encode(api.MessagePage{
				Items:      []*model.Message{model.NewMessage(model.RoleAssistant, "newest")},
				NextCursor: "older",
			})
		case "older":
			json.NewEncoder(w).Encode(api.MessagePage{
				Items: []*model.Message{model.NewMessage(model.RoleUser, "oldest")},
			})
		}
	}))
	defer server.Close()

	h := NewMessageHistory(testClient(server.URL))
	h.Load(context.Background(), "conv_1")
	waitFor(t, func() bool { return h.Loaded() })

	if !h.HasOlder() {
		t.Fatal("expected an older page")
	}
	h.LoadOlder(context.Background())
	waitFor(t, func() bool { return len(h.Messages()) == 2 })

	msgs := h.Messages()
	if msgs[0].Content != "oldest" || msgs[1].Content != "newest" {
		t.Errorf("older page should be prepended: %q, %q", msgs[0].Content, msgs[1].Content)
	}
	if h.HasOlder() {
		t.Error("no more pages expected")
	}
}

func TestMessageHistory_SwitchDiscardsSlowLoad(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/conversations/conv_slow/messages" {
			<-release
			json.NewEncoder(w).Encode(api.MessagePage{
				Items: []*model.Message{model.NewMessage(model.RoleUser, "stale")},
			})
			return
		}
		json.NewEncoder(w).Encode(api.MessagePage{
			Items: []*model.Message{model.NewMessage(model.RoleUser, "fresh")},
		})
	}))
	defer server.Close()

	h := NewMessageHistory(testClient(server.URL))
	h.Load(context.Background(), "conv_slow")
	h.Load(context.Background(), "conv_fresh")
	waitFor(t, func() bool { return h.Loaded() })

	close(release)
	time.Sleep(50 * time.Millisecond)
	msgs := h.Messages()
	if len(msgs) != 1 || msgs[0].Content != "fresh" {
		t.Errorf("slow load leaked into switched conversation: %+v", msgs)
	}
}

func TestMessageHistory_ReloadDiscardsSlowOlderPage(t *testing.T) {
	// Reopening the same conversation while an older page is in flight
	// must drop that page: prepending it under the fresh newest page
	// would scramble the transcript.
	olderStarted := make(chan struct{})
	releaseOlder := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("cursor") {
		case "":
			json.NewEncoder(w).Encode(api.MessagePage{
				Items:      []*model.Message{model.NewMessage(model.RoleAssistant, "newest")},
				NextCursor: "older",
			})
		case "older":
			close(olderStarted)
			<-releaseOlder
			json.NewEncoder(w).Encode(api.MessagePage{
				Items: []*model.Message{model.NewMessage(model.RoleUser, "oldest")},
			})
		}
	}))
	defer server.Close()

	h := NewMessageHistory(testClient(server.URL))
	h.Load(context.Background(), "conv_1")
	waitFor(t, func() bool { return h.Loaded() })

	h.LoadOlder(context.Background())
	<-olderStarted
	h.Load(context.Background(), "conv_1")
	waitFor(t, func() bool { return h.Loaded() && !h.IsLoading() })

	close(releaseOlder)
	time.Sleep(50 * time.Millisecond)
	msgs := h.Messages()
	if len(msgs) != 1 || msgs[0].Content != "newest" {
		t.Errorf("superseded older page leaked into reloaded transcript: %+v", msgs)
	}
	if h.IsLoading() {
		t.Error("superseded older page flipped the loading flag")
	}
}
