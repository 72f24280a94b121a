package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/coderoom/backend/internal/model/room"
	relayService "github.com/zhouzirui/coderoom/backend/internal/service/relay"
	roomService "github.com/zhouzirui/coderoom/backend/internal/service/room"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	relaySvc := relayService.NewService(relayService.NewMemoryBroker(), nil)
	t.Cleanup(relaySvc.Close)
	return NewRouter(Deps{
		Rooms: roomService.NewService(room.NewMemoryStore()),
		Relay: relaySvc,
	})
}

func TestRouterRoutes(t *testing.T) {
	r := newTestRouter(t)

	cases := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodGet, "/healthz", "", http.StatusOK},
		{http.MethodPost, "/api/rooms", "{}", http.StatusCreated},
		{http.MethodGet, "/api/rooms/NOPE00", "", http.StatusNotFound},
		{http.MethodPost, "/api/complete", `{"code":"x"}`, http.StatusServiceUnavailable},
		{http.MethodOptions, "/api/rooms", "", http.StatusNoContent},
	}
	for _, tc := range cases {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body)))
		assert.Equal(t, tc.want, resp.Code, "%s %s", tc.method, tc.path)
	}
}

func TestRouterServesRelay(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(t))
	defer srv.Close()

	// A plain GET reaches the relay handler, which refuses the non-upgrade.
	resp, err := http.Get(srv.URL + "/ws/code/ROOM01/")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
