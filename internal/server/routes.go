package server

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	v1 "github.com/opencampus/trail/internal/api/v1"
	"github.com/opencampus/trail/internal/api/ws"
	"github.com/opencampus/trail/internal/query"
)

func registerAPIRoutes(api huma.API, r chi.Router, engine *query.Engine) {
	v1.RegisterAuditRoutes(api, engine)

	// CSV export bypasses huma: the payload is a fixed wire format.
	r.Get("/audit/logs/export", v1.ExportHandler(engine))
}

func registerWSRoutes(r chi.Router, hub *ws.Hub) {
	r.Get("/audit/feed", hub.ServeFeed)
}
