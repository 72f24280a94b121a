package completion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuggestPostsCode(t *testing.T) {
	var got request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/complete", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"suggestion":"    return x\n"}`))
	}))
	defer srv.Close()

	suggestion, err := New(srv.URL+"/", nil).Suggest(context.Background(), "def f(x):\n")

	require.NoError(t, err)
	assert.Equal(t, "def f(x):\n", got.Code)
	assert.Equal(t, "    return x\n", suggestion)
}

func TestSuggestNonSuccessFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"ai completion unavailable"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, nil).Suggest(context.Background(), "x")

	require.ErrorIs(t, err, ErrCompletionFailed)
	assert.Contains(t, err.Error(), "ai completion unavailable")
	assert.Contains(t, err.Error(), "503")
}

func TestSuggestGarbageBodyFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, nil).Suggest(context.Background(), "x")

	assert.ErrorIs(t, err, ErrCompletionFailed)
}
