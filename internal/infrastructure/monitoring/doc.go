/*
Package monitoring provides Prometheus metrics for the TabWall backend.

# Overview

Metrics live on a private registry so several hosts (and tests) can exist
in one process. Every recording method accepts a nil receiver.

# Metrics

  - tabwall_http_*: command surface latency and status
  - tabwall_panels_*: registry size and enabled count
  - tabwall_layout_passes_total, tabwall_scroll_*: layout engine activity
  - tabwall_broadcast_*: per-target outcomes and whole-broadcast latency
  - tabwall_attach_attempts_total: file attachment attempts
  - tabwall_persist_writes_total: snapshot and panel file writes
  - tabwall_devtools_*: DevTools protocol calls and failures
  - tabwall_ws_*: observer websocket traffic

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
