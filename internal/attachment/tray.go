// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package attachment implements the upload pipeline for chat attachments:
// validation, signed-URL upload, local previews, and the tray of files
// staged on the composer before a send.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/campreserv/chatkit/internal/api"
	"github.com/campreserv/chatkit/internal/model"
	"github.com/campreserv/chatkit/internal/util"
)

// =============================================================================
// VALIDATION RULES
// =============================================================================

const (
	// MaxAttachmentSize is the upload size ceiling (10 MiB).
	MaxAttachmentSize = 10 * 1024 * 1024

	// MaxAttachments is the per-message attachment limit.
	MaxAttachments = 5

	// sniffLen is how many leading bytes feed content-type detection.
	sniffLen = 512
)

var (
	// ErrTooLarge is returned for files over MaxAttachmentSize.
	ErrTooLarge = fmt.Errorf("attachment exceeds %d MiB limit", MaxAttachmentSize/(1024*1024))

	// ErrUnsupportedType is returned for anything that is not an image or PDF.
	ErrUnsupportedType = errors.New("only images and PDF attachments are supported")

	// ErrTooMany is returned when the tray is full.
	ErrTooMany = fmt.Errorf("at most %d attachments per message", MaxAttachments)
)

// allowedExtensions maps permitted file extensions to their content types.
var allowedExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".pdf":  "application/pdf",
}

// allowedMIME holds the content types detection may report for permitted
// files. Extension and sniffed type must BOTH pass: a renamed executable
// fails the sniff, an unknown extension fails the map.
var allowedMIME = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"application/pdf": true,
}

// Validate checks a candidate attachment by name, size and leading bytes.
// SECURITY: the sniffed content type must agree with the extension; the
// backend re-validates, this is the client-side gate.
func Validate(name string, size int64, head []byte) (contentType string, err error) {
	if size > MaxAttachmentSize {
		return "", ErrTooLarge
	}
	ext := strings.ToLower(filepath.Ext(name))
	declared, ok := allowedExtensions[ext]
	if !ok {
		return "", ErrUnsupportedType
	}
	sniffed := http.DetectContentType(head)
	// DetectContentType appends charset parameters for text; attachments
	// never legitimately sniff as text.
	if i := strings.Index(sniffed, ";"); i >= 0 {
		sniffed = sniffed[:i]
	}
	if !allowedMIME[sniffed] || sniffed != declared {
		return "", ErrUnsupportedType
	}
	return declared, nil
}

// =============================================================================
// TRAY ITEM
// =============================================================================

// ItemState is the upload lifecycle of one staged attachment.
type ItemState string

const (
	StateUploading ItemState = "uploading"
	StateReady     ItemState = "ready"
	StateError     ItemState = "error"
)

// Item is one attachment staged on the composer.
type Item struct {
	ID          string
	Name        string
	ContentType string
	Size        int64
	State       ItemState

	// Err holds the validation or upload failure when State is StateError.
	Err string

	// PreviewPath is a local copy for image previews, cleaned up when the
	// item is removed. Empty for PDFs.
	PreviewPath string

	// Descriptor is the server-confirmed attachment, set when State is
	// StateReady. It travels on the message verbatim.
	Descriptor model.Attachment
}

// =============================================================================
// TRAY
// =============================================================================

// Tray stages attachments for the next send. Uploads run in the
// background; a message cannot be sent until every staged item is ready.
type Tray struct {
	client *api.Client

	mu         sync.Mutex
	items      []*Item
	previewDir string

	// updates is a coalescing change signal, same contract as the
	// conversation manager's.
	updates chan struct{}
}

// NewTray creates a tray over the backend client.
func NewTray(client *api.Client) *Tray {
	return &Tray{
		client:  client,
		updates: make(chan struct{}, 1),
	}
}

// Updates returns the change signal channel.
func (t *Tray) Updates() <-chan struct{} {
	return t.updates
}

func (t *Tray) notify() {
	select {
	case t.updates <- struct{}{}:
	default:
	}
}

// Add validates the file at path, stages it, and starts its upload.
// Returns the staged item immediately; watch Updates for state changes.
// A file that fails validation is still staged, as an error row with no
// upload attempted, so the failure stays visible in the tray. Both the
// item and the error are returned in that case.
func (t *Tray) Add(ctx context.Context, path string) (*Item, error) {
	if !t.client.CanUpload() {
		return nil, api.ErrUploadsUnavailable
	}

	t.mu.Lock()
	count := len(t.items)
	t.mu.Unlock()
	if count >= MaxAttachments {
		return nil, ErrTooMany
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read attachment: %w", err)
	}

	head, err := readHead(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read attachment: %w", err)
	}
	contentType, err := Validate(filepath.Base(path), info.Size(), head)
	if err != nil {
		item := &Item{
			ID:    uuid.NewString(),
			Name:  filepath.Base(path),
			Size:  info.Size(),
			State: StateError,
			Err:   err.Error(),
		}
		t.mu.Lock()
		t.items = append(t.items, item)
		t.mu.Unlock()
		t.notify()
		return item, err
	}

	item := &Item{
		ID:          uuid.NewString(),
		Name:        filepath.Base(path),
		ContentType: contentType,
		Size:        info.Size(),
		State:       StateUploading,
	}

	if strings.HasPrefix(contentType, "image/") {
		if preview, err := t.stagePreview(item.ID, path); err == nil {
			item.PreviewPath = preview
		} else {
			// Previews are cosmetic; the upload still proceeds.
			log.Printf("attachment preview staging failed: %v", err)
		}
	}

	t.mu.Lock()
	t.items = append(t.items, item)
	t.mu.Unlock()
	t.notify()

	go t.upload(ctx, item, path)
	return item, nil
}

// upload signs and uploads one item, then flips its state.
func (t *Tray) upload(ctx context.Context, item *Item, path string) {
	desc, err := t.uploadFile(ctx, item, path)

	t.mu.Lock()
	if err != nil {
		item.State = StateError
		item.Err = err.Error()
	} else {
		item.State = StateReady
		item.Descriptor = desc
	}
	t.mu.Unlock()
	t.notify()
}

func (t *Tray) uploadFile(ctx context.Context, item *Item, path string) (model.Attachment, error) {
	signed, err := t.client.SignUpload(ctx, api.SignRequest{
		Filename:    item.Name,
		ContentType: item.ContentType,
		Size:        item.Size,
	})
	if err != nil {
		return model.Attachment{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return model.Attachment{}, fmt.Errorf("cannot open attachment: %w", err)
	}
	defer f.Close()

	if err := t.client.Upload(ctx, signed.UploadURL, item.ContentType, f, item.Size); err != nil {
		return model.Attachment{}, err
	}

	return model.Attachment{
		Name:        item.Name,
		ContentType: item.ContentType,
		Size:        item.Size,
		StorageKey:  signed.StorageKey,
		URL:         signed.PublicURL,
		DownloadURL: signed.DownloadURL,
	}, nil
}

// stagePreview copies an image into the tray's preview directory so the
// preview survives the source file moving or disappearing.
func (t *Tray) stagePreview(id, path string) (string, error) {
	t.mu.Lock()
	if t.previewDir == "" {
		dir, err := os.MkdirTemp("", "chatkit-previews-")
		if err != nil {
			t.mu.Unlock()
			return "", err
		}
		t.previewDir = dir
	}
	dir := t.previewDir
	t.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	dest := filepath.Join(dir, id+filepath.Ext(path))
	if err := util.AtomicWriteFile(dest, data, 0600); err != nil {
		return "", err
	}
	return dest, nil
}

// Remove unstages an item and deletes its preview file.
func (t *Tray) Remove(id string) {
	t.mu.Lock()
	var preview string
	for i, item := range t.items {
		if item.ID == id {
			preview = item.PreviewPath
			t.items = append(t.items[:i], t.items[i+1:]...)
			break
		}
	}
	t.mu.Unlock()

	if preview != "" {
		os.Remove(preview)
	}
	t.notify()
}

// RetryUpload restarts a failed item's upload from its preview copy or
// original path. Items that failed validation are not retryable; the fix
// is a different file.
func (t *Tray) RetryUpload(ctx context.Context, id, path string) error {
	t.mu.Lock()
	var item *Item
	for _, cand := range t.items {
		if cand.ID == id && cand.State == StateError && cand.ContentType != "" {
			item = cand
			break
		}
	}
	if item == nil {
		t.mu.Unlock()
		return errors.New("no failed attachment with that id")
	}
	item.State = StateUploading
	item.Err = ""
	t.mu.Unlock()
	t.notify()

	go t.upload(ctx, item, path)
	return nil
}

// Items returns a snapshot of the staged items.
func (t *Tray) Items() []*Item {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Item(nil), t.items...)
}

// Ready returns the descriptors of fully uploaded items, in staging order.
func (t *Tray) Ready() []model.Attachment {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []model.Attachment
	for _, item := range t.items {
		if item.State == StateReady {
			out = append(out, item.Descriptor)
		}
	}
	return out
}

// HasUploading reports whether any staged item is still uploading. Sends
// are blocked while this is true.
func (t *Tray) HasUploading() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, item := range t.items {
		if item.State == StateUploading {
			return true
		}
	}
	return false
}

// HasError reports whether any staged item failed to upload.
func (t *Tray) HasError() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, item := range t.items {
		if item.State == StateError {
			return true
		}
	}
	return false
}

// Clear unstages everything, deleting preview files. Called after a
// successful send.
func (t *Tray) Clear() {
	t.mu.Lock()
	items := t.items
	t.items = nil
	t.mu.Unlock()

	for _, item := range items {
		if item.PreviewPath != "" {
			os.Remove(item.PreviewPath)
		}
	}
	t.notify()
}

// Close clears the tray and removes the preview directory.
func (t *Tray) Close() {
	t.Clear()
	t.mu.Lock()
	dir := t.previewDir
	t.previewDir = ""
	t.mu.Unlock()
	if dir != "" {
		os.RemoveAll(dir)
	}
}

// readHead reads the sniff window from the start of the file.
func readHead(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := f.Read(head)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return head[:n], nil
}
