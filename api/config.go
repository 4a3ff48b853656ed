// Package api provides the HTTP API server for capturing events and
// querying the tiered memory system.
package api

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string
}
