package room

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/coderoom/backend/internal/model/room"
	roomService "github.com/zhouzirui/coderoom/backend/internal/service/room"
	"github.com/zhouzirui/coderoom/backend/pkg/utils"
)

// Handler 房间服务的HTTP处理器
type Handler struct {
	rooms *roomService.Service
}

// New 创建房间处理器
func New(rooms *roomService.Service) *Handler {
	return &Handler{rooms: rooms}
}

// RegisterRoutes 注册房间相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/rooms", h.handleCreateRoom)
	r.Get("/rooms/{room}", h.handleGetRoom)
}

// handleCreateRoom 创建房间，请求体可以为空
func (h *Handler) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Language string `json:"language"`
		Creator  string `json:"creator"`
	}

	if err := utils.DecodeJSON(w, r, &payload, true); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.rooms.Create(r.Context(), payload.Language, payload.Creator)
	if err != nil {
		log.Printf("[room] create failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to create room")
		return
	}

	utils.RespondJSON(w, http.StatusCreated, created)
}

// handleGetRoom 查询房间
func (h *Handler) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	found, err := h.rooms.Get(r.Context(), chi.URLParam(r, "room"))
	switch {
	case err == nil:
		utils.RespondJSON(w, http.StatusOK, found)
	case errors.Is(err, roomService.ErrInvalidName):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, room.ErrRoomNotFound):
		utils.RespondError(w, http.StatusNotFound, "Room not found")
	default:
		log.Printf("[room] lookup failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to load room")
	}
}
