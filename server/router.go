package server

import (
	"net/http"

	"portofmars/server/domain"
	"portofmars/server/handler"
)

// Dependencies はルーティングに必要な部品です。
type Dependencies struct {
	PubSub         domain.PubSub
	Rooms          *domain.SimpleRoomManager
	Verifier       handler.GrantVerifier
	Endpoint       domain.EndpointConfig
	AllowedOrigins []string
}

func Route(deps Dependencies) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /ws", handler.NewAcceptHandler(deps.PubSub, deps.Rooms, deps.Verifier, deps.Endpoint, deps.AllowedOrigins))
	mux.Handle("GET /healthz", handler.NewHealthHandler(deps.Rooms))
	return mux
}
