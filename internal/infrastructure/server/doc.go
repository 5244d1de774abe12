// Package server assembles the command surface: gin routing, the
// middleware stack, the websocket hub and the metrics endpoint.
//
// Server Lifecycle:
//  1. NewServer builds the router from configuration and the host
//  2. Run or Serve accepts connections
//  3. Shutdown closes websocket clients and drains requests
//
// Example Usage:
//
//	srv := server.NewServer(cfg, server.Deps{Host: host, Hub: hub, Metrics: metrics, Logger: log})
//	go srv.Run()
//	defer srv.Shutdown(ctx)
package server
