// Package http serves the terminal REST API.
//
// Endpoints:
//   - Health: /health
//   - Terminals: /terminals, /terminals/:id
//   - Interaction: /terminals/:id/input, /terminals/:id/resize
//   - Scrollback: /terminals/:id/history
//
// Terminals created through the API are held by the API until DELETE
// releases them. Streaming output is served by the ws package.
//
// Example Usage:
//
//	handlers := http.NewHandlers(project, metrics, logger)
//	router.POST("/terminals", handlers.CreateTerminal)
//	router.GET("/terminals/:id", handlers.GetTerminal)
package http
