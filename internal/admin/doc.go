// Package admin serves the local HTTP control surface: health, plugin status,
// Prometheus metrics, and a few operator actions that are forwarded to the
// plugin without ever touching host state directly.
package admin
