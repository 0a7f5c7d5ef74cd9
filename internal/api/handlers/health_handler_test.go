package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthHandler_Check(t *testing.T) {
	tests := []struct {
		name  string
		store Pinger
		want  int
	}{
		{"no store", nil, http.StatusOK},
		{"store up", pingerFunc(func(context.Context) error { return nil }), http.StatusOK},
		{"store down", pingerFunc(func(context.Context) error { return errors.New("refused") }), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHealthHandler(tt.store).Check(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.want, rec.Code)
		})
	}

	t.Run("body is OK", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHealthHandler(nil).Check(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, "OK", rec.Body.String())
	})

	t.Run("ping gets a deadline", func(t *testing.T) {
		store := pingerFunc(func(ctx context.Context) error {
			_, ok := ctx.Deadline()
			assert.True(t, ok)

			return nil
		})

		NewHealthHandler(store).Check(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	})
}
