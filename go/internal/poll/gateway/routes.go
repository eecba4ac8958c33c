package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter registers the websocket, history, graphql and health routes
func NewRouter(ws *WebSocketHandler, history *HistoryHandler, gql http.Handler) chi.Router {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
	)

	router.Get("/ws", ws.HandleConnection)
	router.Get("/ws/stats", ws.HandleConnectionStats)

	router.Get("/polls", history.HandleList)
	router.Get("/polls/history", history.HandleList)
	router.Get("/polls/{id}", history.HandleGet)
	router.Post("/graphql", middleware.NoCache(gql).ServeHTTP)

	router.Get("/health", handleHealth)
	return router
}
