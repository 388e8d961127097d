// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conversation owns the live state of one chat session: the ordered
// message list, in-flight send tracking, and the reduction of transport
// fragments into messages. The Manager is the single writer of the message
// list; the UI reads snapshots and issues operations.
package conversation

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/campreserv/chatkit/internal/api"
	"github.com/campreserv/chatkit/internal/model"
	"github.com/campreserv/chatkit/internal/transport"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrInternalNotAllowed is returned when a guest-mode session attempts
	// to send a staff-only internal note.
	ErrInternalNotAllowed = errors.New("internal notes require staff mode")

	// ErrActionNotPending is returned when executing an action that was
	// already resolved or does not exist.
	ErrActionNotPending = errors.New("action is not pending")

	// ErrBusy is returned when a send is attempted while another send is
	// still in flight.
	ErrBusy = errors.New("a message is already in flight")
)

// maxContextMessages bounds the recent transcript attached to each send.
const maxContextMessages = 20

// =============================================================================
// MANAGER
// =============================================================================

// Manager coordinates one conversation over a transport driver.
//
// Concurrency model: every mutation of the message list happens under mu,
// either from an operation method or from the event loop reducing driver
// fragments. The UI never holds a reference into the list; Messages returns
// a snapshot slice.
type Manager struct {
	client *api.Client
	driver transport.Driver

	mu             sync.Mutex
	reducer        *transport.Reducer
	msgs           []*model.Message
	conversationID string

	sending       bool
	typing        bool
	executingTool bool

	// updates is a coalescing change signal for the UI loop. A dropped
	// signal is fine; another one follows with the next change.
	updates chan struct{}

	loopDone chan struct{}
	closed   bool
}

// NewManager creates a manager over the given client and driver.
func NewManager(client *api.Client, driver transport.Driver) *Manager {
	return &Manager{
		client:  client,
		driver:  driver,
		reducer: transport.NewReducer(),
		updates: make(chan struct{}, 1),
	}
}

// Start connects the driver and begins consuming its fragments.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.driver.Start(ctx); err != nil {
		return err
	}
	m.loopDone = make(chan struct{})
	go m.loop()
	return nil
}

// Close shuts the driver down and stops the event loop.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	err := m.driver.Close()
	if m.loopDone != nil {
		<-m.loopDone
	}
	return err
}

// Updates returns the change signal channel. The UI listens on it and
// re-reads state after each signal.
func (m *Manager) Updates() <-chan struct{} {
	return m.updates
}

// notify signals a state change without blocking the caller.
func (m *Manager) notify() {
	select {
	case m.updates <- struct{}{}:
	default:
	}
}

// =============================================================================
// EVENT LOOP
// =============================================================================

// loop reduces driver fragments into the message list until the driver's
// event channel closes.
func (m *Manager) loop() {
	defer close(m.loopDone)
	for e := range m.driver.Events() {
		m.handleEvent(e)
	}
}

func (m *Manager) handleEvent(e api.StreamEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.Err != nil {
		log.Printf("chat transport error: %v", e.Err)
		m.failPendingLocked(e.Err.Error())
		m.sending = false
		m.typing = false
		m.notify()
		return
	}

	var res transport.ApplyResult
	m.msgs, res = m.reducer.Apply(m.msgs, e)

	if res.Created {
		// First fragment of the response confirms the user message that
		// triggered it.
		m.confirmPendingLocked()
		m.typing = true
	}
	if res.ConversationID != "" && m.conversationID == "" {
		m.conversationID = res.ConversationID
	}
	if res.Done {
		m.sending = false
		m.typing = false
	}
	m.notify()
}

// confirmPendingLocked promotes the oldest pending user message.
func (m *Manager) confirmPendingLocked() {
	for _, msg := range m.msgs {
		if msg.Role == model.RoleUser && msg.Delivery == model.DeliveryPending {
			msg.Delivery = model.DeliveryConfirmed
			return
		}
	}
}

// failPendingLocked fails the newest pending user message with reason.
func (m *Manager) failPendingLocked(reason string) {
	for i := len(m.msgs) - 1; i >= 0; i-- {
		msg := m.msgs[i]
		if msg.Role == model.RoleUser && msg.Delivery == model.DeliveryPending {
			msg.Delivery = model.DeliveryFailed
			msg.SendError = reason
			return
		}
	}
}

// =============================================================================
// SENDING
// =============================================================================

// SendMessage echoes the message locally in the pending state and hands it
// to the driver. The local echo is immediate; delivery state changes as
// fragments arrive.
func (m *Manager) SendMessage(ctx context.Context, text string, attachments []model.Attachment, visibility model.Visibility) error {
	if visibility == model.VisibilityInternal && m.client.Scope().Mode != api.ModeStaff {
		return ErrInternalNotAllowed
	}
	if visibility == "" {
		visibility = model.VisibilityPublic
	}

	m.mu.Lock()
	if m.sending {
		m.mu.Unlock()
		return ErrBusy
	}

	msg := model.NewUserMessage(text)
	msg.Visibility = visibility
	msg.Attachments = attachments
	m.msgs = append(m.msgs, msg)
	m.sending = true

	req := m.buildRequestLocked(text, attachments, visibility)
	m.mu.Unlock()
	m.notify()

	if err := m.driver.Send(ctx, req); err != nil {
		m.mu.Lock()
		msg.Delivery = model.DeliveryFailed
		msg.SendError = err.Error()
		m.sending = false
		m.mu.Unlock()
		m.notify()
		return err
	}
	return nil
}

// RetrySend re-dispatches a failed user message. The message returns to the
// pending state and keeps its position in the transcript.
func (m *Manager) RetrySend(ctx context.Context, messageID string) error {
	m.mu.Lock()
	var msg *model.Message
	for _, cand := range m.msgs {
		if cand.ID == messageID && cand.Role == model.RoleUser && cand.Delivery == model.DeliveryFailed {
			msg = cand
			break
		}
	}
	if msg == nil {
		m.mu.Unlock()
		return errors.New("no failed message with that id")
	}
	if m.sending {
		m.mu.Unlock()
		return ErrBusy
	}

	msg.Delivery = model.DeliveryPending
	msg.SendError = ""
	m.sending = true
	req := m.buildRequestLocked(msg.Content, msg.Attachments, msg.Visibility)
	m.mu.Unlock()
	m.notify()

	if err := m.driver.Send(ctx, req); err != nil {
		m.mu.Lock()
		msg.Delivery = model.DeliveryFailed
		msg.SendError = err.Error()
		m.sending = false
		m.mu.Unlock()
		m.notify()
		return err
	}
	return nil
}

// Regenerate asks the backend to produce a fresh reply for the given
// assistant message. The replaced reply stays in the transcript until the
// new response starts arriving.
func (m *Manager) Regenerate(ctx context.Context, messageID string) error {
	m.mu.Lock()
	if m.sending {
		m.mu.Unlock()
		return ErrBusy
	}
	m.sending = true
	req := m.buildRequestLocked("", nil, model.VisibilityPublic)
	req.RegenerateOf = messageID
	m.mu.Unlock()

	if err := m.driver.Send(ctx, req); err != nil {
		m.mu.Lock()
		m.sending = false
		m.mu.Unlock()
		return err
	}
	m.notify()
	return nil
}

// buildRequestLocked assembles the send body, including the recent public
// transcript. Internal notes are excluded from context unconditionally.
func (m *Manager) buildRequestLocked(text string, attachments []model.Attachment, visibility model.Visibility) api.SendRequest {
	scope := m.client.Scope()
	return api.SendRequest{
		CampgroundID:   scope.CampgroundID,
		Mode:           scope.Mode,
		SessionID:      scope.SessionID,
		ConversationID: m.conversationID,
		ParticipantID:  scope.ParticipantID,
		Text:           text,
		Attachments:    attachments,
		Visibility:     visibility,
		Context:        recentPublicContext(m.msgs, maxContextMessages),
	}
}

// recentPublicContext returns up to max trailing public messages. Internal
// staff notes never leave the client as context, whichever mode is sending.
func recentPublicContext(msgs []*model.Message, max int) []*model.Message {
	var out []*model.Message
	for i := len(msgs) - 1; i >= 0 && len(out) < max; i-- {
		msg := msgs[i]
		if msg.IsInternal() || msg.IsStreaming || msg.Delivery == model.DeliveryFailed {
			continue
		}
		out = append(out, msg)
	}
	// Reverse into chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// =============================================================================
// ACTIONS AND TOOLS
// =============================================================================

// ExecuteAction resolves a pending action by submitting the chosen option.
// On failure the error is recorded inline on the action so the user can
// retry; the action stays pending.
func (m *Manager) ExecuteAction(ctx context.Context, messageID, optionID string) error {
	m.mu.Lock()
	var action *model.ActionRequired
	for _, msg := range m.msgs {
		if msg.ID == messageID {
			action = msg.PendingAction()
			break
		}
	}
	if action == nil {
		m.mu.Unlock()
		return ErrActionNotPending
	}
	m.executingTool = true
	m.mu.Unlock()
	m.notify()

	result, err := m.client.ExecuteAction(ctx, action.ID, optionID)

	m.mu.Lock()
	m.executingTool = false
	if err != nil {
		action.Error = err.Error()
		m.mu.Unlock()
		m.notify()
		return err
	}
	action.Resolved = true
	action.Error = ""
	if result != nil && result.Message != nil {
		m.msgs = append(m.msgs, result.Message)
	}
	m.mu.Unlock()
	m.notify()
	return nil
}

// ExecuteTool runs a backend-proposed tool call and attaches its result to
// the message carrying the call.
func (m *Manager) ExecuteTool(ctx context.Context, messageID string, call model.ToolCall) error {
	m.mu.Lock()
	var msg *model.Message
	for _, cand := range m.msgs {
		if cand.ID == messageID {
			msg = cand
			break
		}
	}
	if msg == nil {
		m.mu.Unlock()
		return api.ErrNotFound
	}
	m.executingTool = true
	m.mu.Unlock()
	m.notify()

	result, err := m.client.ExecuteTool(ctx, call.Name, call.Args)

	m.mu.Lock()
	m.executingTool = false
	if err != nil {
		m.mu.Unlock()
		m.notify()
		return err
	}
	result.CallID = call.ID
	msg.ToolResults = append(msg.ToolResults, *result)
	m.mu.Unlock()
	m.notify()
	return nil
}

// SubmitFeedback submits a fire-and-forget message rating.
func (m *Manager) SubmitFeedback(ctx context.Context, messageID string, rating api.Rating) error {
	return m.client.SubmitFeedback(ctx, messageID, rating)
}

// =============================================================================
// CONVERSATION SWITCHING
// =============================================================================

// SetActiveConversation replaces the transcript, typically after loading a
// conversation from history. In-flight responses for the previous
// conversation are invalidated so their late fragments cannot leak in.
func (m *Manager) SetActiveConversation(conversationID string, msgs []*model.Message) {
	m.mu.Lock()
	m.reducer.Invalidate(m.msgs)
	m.conversationID = conversationID
	m.msgs = append([]*model.Message(nil), msgs...)
	m.sending = false
	m.typing = false
	m.mu.Unlock()
	m.notify()
}

// Clear resets to an empty conversation. The next send starts a fresh one.
func (m *Manager) Clear() {
	m.SetActiveConversation("", nil)
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

// Messages returns a snapshot of the transcript. When showInternal is
// false, staff-only notes are filtered out.
func (m *Manager) Messages(showInternal bool) []*model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Message, 0, len(m.msgs))
	for _, msg := range m.msgs {
		if !showInternal && msg.IsInternal() {
			continue
		}
		out = append(out, msg)
	}
	return out
}

// PendingAction returns the unresolved action on the latest assistant
// message, or nil. An action is superseded the moment a newer assistant
// message lands; free-text sends stay available throughout.
func (m *Manager) PendingAction() (string, *model.ActionRequired) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.msgs) - 1; i >= 0; i-- {
		msg := m.msgs[i]
		if msg.Role != model.RoleAssistant || msg.IsStreaming {
			continue
		}
		if a := msg.PendingAction(); a != nil {
			return msg.ID, a
		}
		return "", nil
	}
	return "", nil
}

// ConversationID returns the backend conversation id, empty until assigned.
func (m *Manager) ConversationID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conversationID
}

// IsSending reports whether a send awaits its first response fragment.
func (m *Manager) IsSending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sending && !m.typing
}

// IsTyping reports whether an assistant response is streaming in.
func (m *Manager) IsTyping() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.typing
}

// IsExecutingTool reports whether an action or tool call is running.
func (m *Manager) IsExecutingTool() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.executingTool
}

// IsConnected reports the transport connection state.
func (m *Manager) IsConnected() bool {
	return m.driver.Connected()
}
