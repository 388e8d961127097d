// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// =============================================================================
// ATTACHMENT SIGNING
// =============================================================================

// SignRequest asks the backend for a signed upload slot.
type SignRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// SignResponse is the backend's signed slot: where to PUT the bytes and
// the descriptor the attachment will carry once stored.
type SignResponse struct {
	UploadURL   string `json:"uploadUrl"`
	StorageKey  string `json:"storageKey"`
	PublicURL   string `json:"publicUrl"`
	DownloadURL string `json:"downloadUrl,omitempty"`
}

// SignUpload requests a signed upload slot. Guest and staff scopes hit
// different endpoints; anonymous guests cannot upload at all.
func (c *Client) SignUpload(ctx context.Context, req SignRequest) (*SignResponse, error) {
	if !c.CanUpload() {
		return nil, ErrUploadsUnavailable
	}

	path := "/api/v1/uploads/sign"
	if c.scope.Mode == ModeGuest {
		path = "/api/v1/guest/uploads/sign"
	}

	var out SignResponse
	if err := c.doJSON(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// DIRECT UPLOAD
// =============================================================================

// Upload PUTs raw bytes to a signed upload URL with the declared content
// type. The URL points at the storage provider, not the chat backend, so
// this bypasses the client's retry plumbing: a failed upload is surfaced
// on the attachment item and retried by re-adding it.
func (c *Client) Upload(ctx context.Context, uploadURL, contentType string, body io.Reader, size int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, body)
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = size

	logRequest(req)
	start := time.Now()
	resp, err := sharedHTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()
	logResponse(resp, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := readResponse(resp)
		return handleErrorResponse(resp.StatusCode, respBody)
	}
	return nil
}
