// Copyright (c) 2024-2025 Campreserv, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"testing"
)

// =============================================================================
// ARTIFACT CLASSIFICATION TESTS
// =============================================================================

func TestClassifyResult(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		isError bool
		want    ArtifactKind
	}{
		{"availability", `{"availableSites":[{"siteId":"A12","name":"Riverside 12"}]}`, false, ArtifactAvailability},
		{"quote", `{"quote":{"totalCents":12800,"nights":2}}`, false, ArtifactQuote},
		{"occupancy", `{"occupancy":{"rate":0.82}}`, false, ArtifactOccupancy},
		{"revenue", `{"revenue":{"monthCents":1250000}}`, false, ArtifactRevenue},
		{"render tree", `{"jsonRender":{"type":"table","rows":[]}}`, false, ArtifactRender},
		{"empty sites list still counts", `{"availableSites":[]}`, false, ArtifactAvailability},
		{"unrecognized", `{"weather":"sunny"}`, false, ArtifactNone},
		{"malformed json", `{"availableSites":`, false, ArtifactNone},
		{"empty payload", ``, false, ArtifactNone},
		{"error result never classifies", `{"quote":{}}`, true, ArtifactNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ToolResult{CallID: "call_1", Payload: json.RawMessage(tt.payload), IsError: tt.isError}
			if got := ClassifyResult(res); got != tt.want {
				t.Errorf("ClassifyResult = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassifyResult_FirstMatchWins(t *testing.T) {
	// A payload carrying several recognized keys classifies deterministically.
	res := ToolResult{Payload: json.RawMessage(`{"availableSites":[],"quote":{}}`)}
	if got := ClassifyResult(res); got != ArtifactAvailability {
		t.Errorf("ClassifyResult = %q, want %q", got, ArtifactAvailability)
	}
}

func TestMessage_Artifact(t *testing.T) {
	msg := NewMessage(RoleAssistant, "Here are your options.")
	if msg.HasArtifact() {
		t.Error("message without tool results should have no artifact")
	}

	msg.ToolResults = []ToolResult{
		{CallID: "call_1", Payload: json.RawMessage(`{"note":"ok"}`)},
		{CallID: "call_2", Payload: json.RawMessage(`{"quote":{"totalCents":9900}}`)},
	}

	art := msg.Artifact()
	if art == nil {
		t.Fatal("expected artifact")
	}
	if art.Kind != ArtifactQuote {
		t.Errorf("Kind = %q, want %q", art.Kind, ArtifactQuote)
	}
}
