// Package timeouts defines shared timeout constants used across services.
// Centralizing these values prevents drift between service boundaries and
// makes the durations discoverable.
package timeouts

import "time"

// ReadHeader limits how long the authority HTTP server waits for request
// headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the authority HTTP server waits for in-flight
// requests during graceful shutdown.
const Shutdown = 10 * time.Second

// ClientRequest caps a single device-to-authority HTTP request, covering
// outbox uploads, pulls, and snapshot reads.
const ClientRequest = 10 * time.Second
