// Coursematch - Embedding-Based Course Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/coursematch

package validation

import (
	"strings"
	"testing"
)

func TestGetValidator_Singleton(t *testing.T) {
	v1 := GetValidator()
	v2 := GetValidator()

	if v1 != v2 {
		t.Error("GetValidator() should return the same singleton instance")
	}
	if v1 == nil {
		t.Error("GetValidator() should not return nil")
	}
}

// queryRequest uses the rules the API handlers declare.
type queryRequest struct {
	ID   string `json:"id" validate:"required,max=16,id"`
	TopN int    `json:"top_n" validate:"gte=1"`
}

type item struct {
	Name string `json:"name" validate:"required"`
}

// importRequest uses the slice rules of the catalog import body.
type importRequest struct {
	Items []item   `json:"items" validate:"max=2,dive"`
	Tags  []string `json:"tags" validate:"max=3,dive,max=4"`
}

func TestValidateStruct_Valid(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
	}{
		{"minimal", &queryRequest{ID: "l1", TopN: 1}},
		{"long id", &queryRequest{ID: "64f0c2a9e4b0-x_1", TopN: 100}},
		{"empty import", &importRequest{}},
		{"full import", &importRequest{Items: []item{{"a"}, {"b"}}, Tags: []string{"go", "ml", "data"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateStruct(tt.input); err != nil {
				t.Errorf("ValidateStruct() returned unexpected error: %v", err)
			}
		})
	}
}

func TestValidateStruct_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		input     interface{}
		wantField string
		wantTag   string
		wantMsg   string
	}{
		{"missing id", &queryRequest{TopN: 5}, "id", "required", "id is required"},
		{"id too long", &queryRequest{ID: strings.Repeat("x", 17), TopN: 5}, "id", "max", "id must be at most 16 characters"},
		{"id with space", &queryRequest{ID: "a b", TopN: 5}, "id", "id", "id must not contain whitespace, slashes or control characters"},
		{"id with slash", &queryRequest{ID: "a/b", TopN: 5}, "id", "id", "id must not contain whitespace, slashes or control characters"},
		{"top n zero", &queryRequest{ID: "l1"}, "top_n", "gte", "top_n must be at least 1"},
		{"too many items", &importRequest{Items: make([]item, 3)}, "items", "max", "items must have at most 2 entries"},
		{"item missing name", &importRequest{Items: []item{{"a"}, {}}}, "name", "required", "name is required"},
		{"tag too long", &importRequest{Tags: []string{"golang"}}, "tags[0]", "max", "tags[0] must be at most 4 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(tt.input)
			if err == nil {
				t.Fatal("ValidateStruct() = nil, want error")
			}
			errs := err.Errors()
			if len(errs) != 1 {
				t.Fatalf("got %d errors, want 1: %v", len(errs), err)
			}
			if errs[0].Field() != tt.wantField {
				t.Errorf("Field() = %q, want %q", errs[0].Field(), tt.wantField)
			}
			if errs[0].Tag() != tt.wantTag {
				t.Errorf("Tag() = %q, want %q", errs[0].Tag(), tt.wantTag)
			}
			if got := err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestValidateStruct_NotAStruct(t *testing.T) {
	err := ValidateStruct("learner")
	if err == nil {
		t.Fatal("ValidateStruct() = nil, want error")
	}
	if got := err.Errors()[0].Field(); got != "request" {
		t.Errorf("Field() = %q, want %q", got, "request")
	}
}

func TestToAPIError(t *testing.T) {
	t.Run("single error", func(t *testing.T) {
		apiErr := ValidateStruct(&queryRequest{TopN: 5}).ToAPIError()
		if apiErr.Code != "VALIDATION_ERROR" {
			t.Errorf("Code = %q, want VALIDATION_ERROR", apiErr.Code)
		}
		if apiErr.Details["field"] != "id" {
			t.Errorf("Details[field] = %v, want id", apiErr.Details["field"])
		}
		if apiErr.Details["tag"] != "required" {
			t.Errorf("Details[tag] = %v, want required", apiErr.Details["tag"])
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		apiErr := ValidateStruct(&queryRequest{}).ToAPIError()
		want := "id: id is required; top_n: top_n must be at least 1"
		if apiErr.Message != want {
			t.Errorf("Message = %q, want %q", apiErr.Message, want)
		}
		fields, ok := apiErr.Details["fields"].([]map[string]interface{})
		if !ok || len(fields) != 2 {
			t.Errorf("Details[fields] = %v, want 2 entries", apiErr.Details["fields"])
		}
	})

	t.Run("empty", func(t *testing.T) {
		apiErr := (&RequestValidationError{}).ToAPIError()
		if apiErr.Message != "Validation failed" {
			t.Errorf("Message = %q, want %q", apiErr.Message, "Validation failed")
		}
	})
}
