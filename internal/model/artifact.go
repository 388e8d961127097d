// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "encoding/json"

// =============================================================================
// ARTIFACT CLASSIFICATION
// =============================================================================

// ArtifactKind identifies a renderable structured payload embedded in a
// tool result. Classification happens in exactly one place (ClassifyResult)
// instead of scattering shape checks across render code.
type ArtifactKind string

const (
	ArtifactNone         ArtifactKind = ""
	ArtifactAvailability ArtifactKind = "availability"
	ArtifactQuote        ArtifactKind = "quote"
	ArtifactOccupancy    ArtifactKind = "occupancy"
	ArtifactRevenue      ArtifactKind = "revenue"
	ArtifactRender       ArtifactKind = "render" // generic render tree
)

// Artifact pairs a classified payload with its source tool result.
type Artifact struct {
	Kind    ArtifactKind
	Payload json.RawMessage
}

// artifactProbe mirrors the optional keys whose presence marks a payload
// as a known artifact shape. Only presence matters, not the value.
type artifactProbe struct {
	AvailableSites json.RawMessage `json:"availableSites"`
	Quote          json.RawMessage `json:"quote"`
	Occupancy      json.RawMessage `json:"occupancy"`
	Revenue        json.RawMessage `json:"revenue"`
	JSONRender     json.RawMessage `json:"jsonRender"`
}

// ClassifyResult inspects a tool result payload and returns its artifact
// kind, or ArtifactNone for unrecognized or malformed payloads. Malformed
// JSON is deliberately not an error: a broken payload renders as nothing
// rather than breaking the message.
func ClassifyResult(res ToolResult) ArtifactKind {
	if len(res.Payload) == 0 || res.IsError {
		return ArtifactNone
	}
	var probe artifactProbe
	if err := json.Unmarshal(res.Payload, &probe); err != nil {
		return ArtifactNone
	}
	switch {
	case probe.AvailableSites != nil:
		return ArtifactAvailability
	case probe.Quote != nil:
		return ArtifactQuote
	case probe.Occupancy != nil:
		return ArtifactOccupancy
	case probe.Revenue != nil:
		return ArtifactRevenue
	case probe.JSONRender != nil:
		return ArtifactRender
	default:
		return ArtifactNone
	}
}

// Artifact returns the first recognized artifact in the message's tool
// results, or nil if the message holds none.
func (m *Message) Artifact() *Artifact {
	for _, res := range m.ToolResults {
		if kind := ClassifyResult(res); kind != ArtifactNone {
			return &Artifact{Kind: kind, Payload: res.Payload}
		}
	}
	return nil
}

// HasArtifact reports whether the message holds a renderable artifact.
func (m *Message) HasArtifact() bool {
	return m.Artifact() != nil
}
