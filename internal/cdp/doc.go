// Package cdp drives Chromium over the DevTools protocol with the typed
// commands and events of cdproto. Conn multiplexes flattened page
// sessions over one websocket behind a circuit breaker and is the
// cdproto executor; Discovery finds a browser endpoint; Launcher and
// Contexts allocate a profile per partition; Browser opens panel pages in
// those profiles; Page implements the content surface; Window positions
// panel windows as the layout engine places them.
package cdp
