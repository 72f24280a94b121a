package relay

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/coderoom/backend/internal/model/room"
	relayService "github.com/zhouzirui/coderoom/backend/internal/service/relay"
	roomService "github.com/zhouzirui/coderoom/backend/internal/service/room"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

// Options configures the websocket relay endpoint.
type Options struct {
	// RequireRoom rejects connections to rooms that were never created.
	RequireRoom bool
}

// Handler upgrades room connections and pumps frames through the relay.
type Handler struct {
	relay    *relayService.Service
	rooms    *roomService.Service
	opts     Options
	upgrader websocket.Upgrader
}

// New 创建WebSocket中继处理器。rooms 可以为 nil，此时不校验房间。
func New(relay *relayService.Service, rooms *roomService.Service, opts Options) *Handler {
	return &Handler{
		relay: relay,
		rooms: rooms,
		opts:  opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/code/{room}", h.handleWebSocket)
	r.Get("/ws/code/{room}/", h.handleWebSocket)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	roomName := chi.URLParam(r, "room")
	if !roomService.ValidName(roomName) {
		http.Error(w, "invalid room name", http.StatusBadRequest)
		return
	}
	username := strings.TrimSpace(r.URL.Query().Get("username"))

	if status, err := h.resolveRoom(r.Context(), roomName, username); err != nil {
		http.Error(w, err.Error(), status)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[relay] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// The request context is not reliable after hijacking.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	peer, err := h.relay.Join(ctx, roomName, username)
	if err != nil {
		log.Printf("[relay] join room=%s failed: %v", roomName, err)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "relay unavailable"),
			time.Now().Add(writeWait))
		return
	}
	defer h.relay.Leave(context.Background(), peer)

	go h.writePump(conn, peer)
	h.readPump(ctx, conn, peer)
}

func (h *Handler) resolveRoom(ctx context.Context, name, username string) (int, error) {
	if h.rooms == nil {
		return http.StatusOK, nil
	}

	var err error
	if h.opts.RequireRoom {
		_, err = h.rooms.Get(ctx, name)
	} else {
		_, err = h.rooms.Ensure(ctx, name, username)
	}
	switch {
	case err == nil:
		return http.StatusOK, nil
	case errors.Is(err, room.ErrRoomNotFound):
		return http.StatusNotFound, err
	default:
		log.Printf("[relay] resolve room=%s: %v", name, err)
		return http.StatusInternalServerError, errors.New("room lookup failed")
	}
}

func (h *Handler) readPump(ctx context.Context, conn *websocket.Conn, peer *relayService.Peer) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("[relay] read error peer=%s: %v", peer.ID, err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		if err := h.relay.HandleFrame(ctx, peer, data); err != nil {
			log.Printf("[relay] dropped frame from peer=%s: %v", peer.ID, err)
		}
	}
}

func (h *Handler) writePump(conn *websocket.Conn, peer *relayService.Peer) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame := <-peer.Outbound():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Printf("[relay] write error peer=%s: %v", peer.ID, err)
				conn.Close()
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		case <-peer.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			conn.Close()
			return
		}
	}
}
