package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/coderoom/backend/internal/handler/completion"
	"github.com/zhouzirui/coderoom/backend/internal/handler/relay"
	"github.com/zhouzirui/coderoom/backend/internal/handler/room"
	middlewarePkg "github.com/zhouzirui/coderoom/backend/internal/middleware"
	relayService "github.com/zhouzirui/coderoom/backend/internal/service/relay"
	roomService "github.com/zhouzirui/coderoom/backend/internal/service/room"
	"github.com/zhouzirui/coderoom/backend/pkg/utils"
)

// Deps are the services the HTTP surface is built on. Completer may be nil
// when AI is not configured.
type Deps struct {
	Rooms     *roomService.Service
	Relay     *relayService.Service
	Completer completion.Completer
	Relaying  relay.Options
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Websocket routes skip the request logger; it wraps the writer for
	// the whole connection lifetime.
	relay.New(deps.Relay, deps.Rooms, deps.Relaying).RegisterRoutes(r)

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.Logger)

		room.New(deps.Rooms).RegisterRoutes(api)
		completion.New(deps.Completer).RegisterRoutes(api)
	})

	return r
}
