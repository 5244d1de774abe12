// Package host is the wall's command surface: it ties the panel registry,
// layout engine, broadcast dispatcher, isolation manager and state store
// together and pushes panel, toolbar and scroll updates to observers.
package host
