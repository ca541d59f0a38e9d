package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/camlink-core/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Prometheus scrape endpoint (no auth, bound to the API listener)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// WebSocket authenticates with a single-use ticket
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)
			r.Get("/system", s.handleSystem)

			r.With(s.require(auth.PermAuditRead)).Get("/audit", s.handleListAudit)

			r.Route("/devices", func(r chi.Router) {
				r.With(s.require(auth.PermDeviceRead)).Get("/", s.handleListDevices)

				r.Route("/{sn}", func(r chi.Router) {
					r.Use(s.deviceCtx)

					r.Group(func(r chi.Router) {
						r.Use(s.require(auth.PermDeviceRead))
						r.Get("/", s.handleGetDevice)
						r.Get("/status", s.handleGetStatus)
						r.Get("/commands", s.handleListCommands)
						r.Get("/refresh-period", s.handleGetRefreshPeriod)
						r.Get("/push", s.handleGetPush)
						r.Get("/transfers", s.handleListTransfers)
					})

					r.Group(func(r chi.Router) {
						r.Use(s.require(auth.PermDeviceOperate))
						r.Post("/status/refresh", s.handleRefreshStatus)
						r.Post("/commands", s.handleCommand)
						r.Put("/refresh-period", s.handleSetRefreshPeriod)
						r.Put("/push", s.handleSetPush)
					})

					r.Group(func(r chi.Router) {
						r.Use(s.require(auth.PermTransfer))
						r.Put("/resources/{index}", s.handleSetResourcePath)
						r.Post("/transfers", s.handleStartTransfer)
					})
				})
			})

			r.Route("/scan", func(r chi.Router) {
				r.With(s.require(auth.PermDeviceRead)).Get("/", s.handleListScanners)

				r.Group(func(r chi.Router) {
					r.Use(s.require(auth.PermDiscoveryManage))
					r.Post("/{family}/start", s.handleStartScan)
					r.Post("/{family}/stop", s.handleStopScan)
					r.Post("/{family}/now", s.handleScanNow)
				})
			})

			r.Route("/discovery", func(r chi.Router) {
				r.Use(s.require(auth.PermDiscoveryManage))
				r.Put("/heartbeat", s.handleSetHeartbeat)
				r.Put("/allow-list", s.handleSetAllowList)
			})
		})
	})

	return r
}
