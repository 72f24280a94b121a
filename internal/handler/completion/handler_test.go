package completion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aiService "github.com/zhouzirui/coderoom/backend/internal/service/ai"
)

type stubCompleter struct {
	suggestion string
	chunks     []string
	err        error
}

func (s stubCompleter) Complete(context.Context, string) (string, error) {
	return s.suggestion, s.err
}

func (s stubCompleter) Stream(context.Context, string) (*schema.StreamReader[*schema.Message], error) {
	if s.err != nil {
		return nil, s.err
	}
	msgs := make([]*schema.Message, 0, len(s.chunks))
	for _, c := range s.chunks {
		msgs = append(msgs, schema.AssistantMessage(c, nil))
	}
	return schema.StreamReaderFromArray(msgs), nil
}

func setupRouter(c Completer) *chi.Mux {
	r := chi.NewRouter()
	New(c).RegisterRoutes(r)
	return r
}

func post(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestComplete(t *testing.T) {
	r := setupRouter(stubCompleter{suggestion: "return 1"})

	resp := post(r, "/complete", `{"code":"def f():\n"}`)

	require.Equal(t, http.StatusOK, resp.Code)
	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "return 1", out["suggestion"])
}

func TestCompleteUnavailable(t *testing.T) {
	r := setupRouter(nil)

	resp := post(r, "/complete", `{"code":"x"}`)

	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestCompleteBadRequests(t *testing.T) {
	r := setupRouter(stubCompleter{})

	for _, body := range []string{`{`, `{}`, `{"code":""}`} {
		resp := post(r, "/complete", body)
		assert.Equal(t, http.StatusBadRequest, resp.Code, body)
	}
}

func TestCompleteBackendFailure(t *testing.T) {
	r := setupRouter(stubCompleter{err: errors.New("model down")})

	resp := post(r, "/complete", `{"code":"x"}`)

	assert.Equal(t, http.StatusBadGateway, resp.Code)
	assert.Contains(t, resp.Body.String(), "completion failed")
}

func TestStreamCompletion(t *testing.T) {
	r := setupRouter(stubCompleter{chunks: []string{"```py\nret", "urn 1\n```"}})

	resp := post(r, "/complete/stream", `{"code":"def f():\n"}`)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "text/event-stream", resp.Header().Get("Content-Type"))

	var events []StreamEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev StreamEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}

	require.Len(t, events, 3)
	assert.Equal(t, "delta", events[0].Event)
	assert.Equal(t, "message", events[2].Event)
	assert.Equal(t, "return 1", events[2].Suggestion)
}

func TestStreamDisabled(t *testing.T) {
	r := setupRouter(stubCompleter{err: aiService.ErrStreamingDisabled})

	resp := post(r, "/complete/stream", `{"code":"x"}`)

	assert.Equal(t, http.StatusNotImplemented, resp.Code)
}
