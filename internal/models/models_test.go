package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
)

func TestPost_Snippet(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"short content untouched", "hello", "hello"},
		{"exact length untouched", "exactly 13 ch", "exactly 13 ch"},
		{"long content truncated", "a much longer piece of content", "a much longer..."},
		{"multibyte safe", "héllo wörld multibyte content", "héllo wörld m..."},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Post{Content: tt.content}
			assert.Equal(t, tt.want, p.Snippet())
		})
	}
}

func TestPost_CanonicalURL(t *testing.T) {
	p := &Post{ID: 42}
	assert.Equal(t, "/api/posts/42", p.CanonicalURL())
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", NewNotFoundError("Post", 1), fiber.StatusNotFound},
		{"validation", NewValidationError("bad input"), fiber.StatusBadRequest},
		{"unauthorized", NewUnauthorizedError("no session"), fiber.StatusUnauthorized},
		{"forbidden", NewForbiddenError("not yours"), fiber.StatusForbidden},
		{"internal", NewInternalError(errors.New("boom")), fiber.StatusInternalServerError},
		{"plain error", errors.New("anything"), fiber.StatusInternalServerError},
		{"wrapped app error", fmt.Errorf("context: %w", NewNotFoundError("User", "bob")), fiber.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusForError(tt.err))
		})
	}
}

func TestAppError_Error(t *testing.T) {
	plain := NewValidationError("title is required")
	assert.Equal(t, "title is required", plain.Error())

	wrapped := NewInternalError(errors.New("connection refused"))
	assert.Equal(t, "Internal server error: connection refused", wrapped.Error())
	assert.EqualError(t, errors.Unwrap(wrapped), "connection refused")
}
