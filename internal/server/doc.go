// Package server exposes the data service over HTTP: a WebSocket endpoint
// streaming reconciled historical data in chunks, a latest-entry lookup, and
// a health check.
//
// Each WebSocket connection carries one request. A read pump watches the
// connection and cancels the streaming task the moment the client goes away,
// so no store or upstream work runs for a disconnected client.
package server
