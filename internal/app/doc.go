// Package app assembles the wall from configuration: it restores the
// panel registry from the panel file and the saved snapshot, connects to
// the browser, wires the layout engine, dispatcher, isolation manager and
// host, and runs the command surface until shutdown.
package app
