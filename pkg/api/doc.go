// Package api assembles the HTTP surface: the public router with its
// middleware chain and per-route authorization, and the internal
// health/metrics server.
package api
