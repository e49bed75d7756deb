// Package inspect exposes a shared-state registry for development
// tooling: a small HTTP API for reading and writing keys, and a WebSocket
// stream of accepted writes.
//
// The inspector is pure tooling over the registry's public API. It holds
// no private registry state and imposes nothing on core semantics.
//
//	insp := inspect.NewServer(reg)
//	defer insp.Close()
//	http.ListenAndServe(":7333", insp)
//
// Endpoints:
//
//	GET  /healthz          liveness probe
//	GET  /api/keys         snapshot of all keys
//	GET  /api/keys/{key}   one key (404 when never set)
//	PUT  /api/keys/{key}   set the key from a JSON body (?force=1 bypasses
//	                       the equality check)
//	GET  /ws               WebSocket stream of change events
//	GET  /metrics          Prometheus metrics, when configured
package inspect
