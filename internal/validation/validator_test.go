// EventSync - External Event Cache Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventsync

package validation

import (
	"strings"
	"testing"

	"github.com/tomtom215/eventsync/internal/models"
)

func TestGetValidatorSingleton(t *testing.T) {
	t.Parallel()

	if GetValidator() != GetValidator() {
		t.Error("GetValidator() should return the same instance")
	}
}

type resolveRequest struct {
	Ref   string `validate:"required,slug"`
	Limit int    `validate:"min=1,max=100"`
}

func TestValidateStruct(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     resolveRequest
		wantErr   bool
		wantField string
		wantMsg   string
	}{
		{name: "valid", input: resolveRequest{Ref: "spring-walk", Limit: 10}},
		{name: "numeric ref", input: resolveRequest{Ref: "12345", Limit: 10}, wantErr: true, wantField: "Ref", wantMsg: "slug"},
		{name: "missing ref", input: resolveRequest{Limit: 10}, wantErr: true, wantField: "Ref", wantMsg: "is required"},
		{name: "limit too large", input: resolveRequest{Ref: "walk", Limit: 500}, wantErr: true, wantField: "Limit", wantMsg: "at most 100"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			verr := ValidateStruct(&tt.input)
			if !tt.wantErr {
				if verr != nil {
					t.Fatalf("unexpected error: %v", verr)
				}
				return
			}
			if verr == nil {
				t.Fatal("expected validation error")
			}
			if verr.Fields[0].Field != tt.wantField {
				t.Errorf("field = %q, want %q", verr.Fields[0].Field, tt.wantField)
			}
			if !strings.Contains(verr.Error(), tt.wantMsg) {
				t.Errorf("message %q does not contain %q", verr.Error(), tt.wantMsg)
			}
			if apiErr := verr.ToAPIError(); apiErr.Code != "VALIDATION_ERROR" {
				t.Errorf("code = %q", apiErr.Code)
			}
		})
	}
}

func TestValidateExternalEvent(t *testing.T) {
	t.Parallel()

	if verr := ValidateStruct(&models.ExternalEvent{Title: "Walk", ItemType: "walk"}); verr != nil {
		t.Errorf("unexpected error: %v", verr)
	}

	verr := ValidateStruct(&models.ExternalEvent{})
	if verr == nil {
		t.Fatal("expected error for event without title and type")
	}
	if len(verr.Fields) != 2 {
		t.Errorf("got %d field errors, want 2", len(verr.Fields))
	}
	apiErr := verr.ToAPIError()
	if _, ok := apiErr.Details["fields"]; !ok {
		t.Error("multi-field error should list fields")
	}
}
