// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package shell holds the framework-independent presentation state of the
// chat widget: scroll-follow behavior, composer send gating, artifact
// auto-open policy, and the top-level view machine. Nothing in this package
// renders; the UI layer reads these states and draws them.
package shell

// NearBottomThreshold is how close to the bottom (in lines) the viewport
// may be while still counting as "at the bottom". Scrolling within this
// margin does not detach following.
const NearBottomThreshold = 3

// Follow tracks whether the transcript viewport sticks to the newest
// message. Scrolling up detaches it; new content while detached accrues an
// unread count instead of yanking the reader down, and the first unseen
// message is remembered so the transcript can draw a divider above it.
type Follow struct {
	detached    bool
	unread      int
	firstUnseen string
}

// HandleScroll records a user scroll, given the distance from the bottom
// in lines. Returns true when the state changed.
func (f *Follow) HandleScroll(distanceFromBottom int) bool {
	if distanceFromBottom > NearBottomThreshold {
		if !f.detached {
			f.detached = true
			return true
		}
		return false
	}
	// Back within the margin: reattach and clear the unread marker.
	if f.detached || f.unread > 0 {
		f.detached = false
		f.unread = 0
		f.firstUnseen = ""
		return true
	}
	return false
}

// HandleNewContent records newly arrived content on the message with the
// given ID. Returns true when the viewport should auto-scroll to show it.
func (f *Follow) HandleNewContent(messageID string) bool {
	if f.detached {
		f.unread++
		if f.firstUnseen == "" {
			f.firstUnseen = messageID
		}
		return false
	}
	return true
}

// JumpToLatest reattaches following, clearing the unread marker. Bound to
// the "new messages" pill and the End key.
func (f *Follow) JumpToLatest() {
	f.detached = false
	f.unread = 0
	f.firstUnseen = ""
}

// Detached reports whether the reader has scrolled away from the bottom.
func (f *Follow) Detached() bool {
	return f.detached
}

// Unread returns how many content arrivals happened while detached.
func (f *Follow) Unread() int {
	return f.unread
}

// FirstUnseen returns the ID of the earliest message that arrived while
// detached, empty when everything on screen has been seen.
func (f *Follow) FirstUnseen() string {
	return f.firstUnseen
}
