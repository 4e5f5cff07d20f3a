// Package server exposes the chat coordinator over websockets.
//
// A single Hub goroutine owns the coordinator and every client's send queue.
// Clients feed decoded command envelopes into the hub and drain outgoing
// frames in their own write pumps. Configuration, origin checks, per-client
// rate limiting and HTTP routing live in their own files.
package server
