package completion

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"

	aiService "github.com/zhouzirui/coderoom/backend/internal/service/ai"
	"github.com/zhouzirui/coderoom/backend/pkg/utils"
)

// Completer produces code suggestions.
type Completer interface {
	Complete(ctx context.Context, code string) (string, error)
	Stream(ctx context.Context, code string) (*schema.StreamReader[*schema.Message], error)
}

// StreamEvent is one SSE payload of the streaming endpoint.
type StreamEvent struct {
	Event      string `json:"event"`
	Content    string `json:"content,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Handler AI补全的HTTP处理器
type Handler struct {
	completer Completer
}

// New 创建补全处理器。completer 为 nil 时所有请求返回 503。
func New(completer Completer) *Handler {
	return &Handler{completer: completer}
}

// RegisterRoutes 注册补全相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/complete", h.handleComplete)
	r.Post("/complete/stream", h.handleStream)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	code, ok := h.readCode(w, r)
	if !ok {
		return
	}

	suggestion, err := h.completer.Complete(r.Context(), code)
	if err != nil {
		log.Printf("[completion] complete failed: %v", err)
		utils.RespondError(w, http.StatusBadGateway, "completion failed")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"suggestion": suggestion})
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	code, ok := h.readCode(w, r)
	if !ok {
		return
	}

	stream, err := h.completer.Stream(r.Context(), code)
	if errors.Is(err, aiService.ErrStreamingDisabled) {
		utils.RespondError(w, http.StatusNotImplemented, err.Error())
		return
	}
	if err != nil {
		log.Printf("[completion] stream failed: %v", err)
		utils.RespondError(w, http.StatusBadGateway, "completion failed")
		return
	}
	defer stream.Close()

	utils.SetupSSEHeaders(w)

	chunks := make([]*schema.Message, 0, 8)
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			log.Printf("[completion] stream interrupted: %v", recvErr)
			send(w, flusher, StreamEvent{Event: "error", Error: "completion interrupted"})
			return
		}
		if chunk == nil {
			continue
		}

		chunks = append(chunks, chunk)
		if chunk.Content != "" {
			send(w, flusher, StreamEvent{Event: "delta", Content: chunk.Content})
		}
	}

	var full string
	if len(chunks) > 0 {
		merged, err := schema.ConcatMessages(chunks)
		if err != nil {
			send(w, flusher, StreamEvent{Event: "error", Error: "completion interrupted"})
			return
		}
		full = merged.Content
	}
	send(w, flusher, StreamEvent{Event: "message", Suggestion: aiService.CleanSuggestion(full)})
}

// readCode decodes {"code": ...} and writes the error response itself when
// the request cannot be served.
func (h *Handler) readCode(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.completer == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "ai completion unavailable")
		return "", false
	}

	var payload struct {
		Code *string `json:"code"`
	}
	if err := utils.DecodeJSON(w, r, &payload, false); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return "", false
	}
	if payload.Code == nil || *payload.Code == "" {
		utils.RespondError(w, http.StatusBadRequest, "code is required")
		return "", false
	}
	return *payload.Code, true
}

func send(w http.ResponseWriter, flusher http.Flusher, ev StreamEvent) {
	if err := utils.SendSSEEvent(w, flusher, ev.Event, ev); err != nil {
		log.Printf("[completion] write sse event: %v", err)
	}
}
