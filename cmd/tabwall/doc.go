// Command tabwall runs the panel wall.
//
// Usage:
//
//	# start a browser with a DevTools port, then
//	tabwall serve --devtools http://127.0.0.1:9222 --panels config.json
//
//	# development logging
//	tabwall serve --dev
//
// Signals:
//   - SIGINT, SIGTERM: graceful shutdown, state is saved
package main
