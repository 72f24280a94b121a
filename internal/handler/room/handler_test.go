package room

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/coderoom/backend/internal/model/room"
	roomService "github.com/zhouzirui/coderoom/backend/internal/service/room"
)

func setupRouter() *chi.Mux {
	handler := New(roomService.NewService(room.NewMemoryStore(room.Room{Name: "LOBBY1", Language: "java"})))
	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r
}

func TestCreateRoom(t *testing.T) {
	r := setupRouter()
	payload, _ := json.Marshal(map[string]string{"language": "cpp", "creator": "ann"})

	req := httptest.NewRequest(http.MethodPost, "/rooms", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code)
	var created room.Room
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Len(t, created.Name, 6)
	assert.Equal(t, "cpp", created.Language)
	assert.Equal(t, "ann", created.Creator)
}

func TestCreateRoomEmptyBody(t *testing.T) {
	r := setupRouter()

	req := httptest.NewRequest(http.MethodPost, "/rooms", http.NoBody)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code)
	var created room.Room
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, room.DefaultLanguage, created.Language)
}

func TestCreateRoomBadBody(t *testing.T) {
	r := setupRouter()

	req := httptest.NewRequest(http.MethodPost, "/rooms", bytes.NewBufferString("{"))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestGetRoom(t *testing.T) {
	r := setupRouter()

	cases := []struct {
		path string
		want int
	}{
		{"/rooms/LOBBY1", http.StatusOK},
		{"/rooms/NOPE00", http.StatusNotFound},
		{"/rooms/no-dash", http.StatusBadRequest},
	}
	for _, tc := range cases {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, tc.path, nil))
		assert.Equal(t, tc.want, resp.Code, tc.path)
	}
}
