// Package http exposes the wall's command surface as gin routes under
// /api. Panel-scoped commands take the panel id from the path; failures are
// mapped from the error taxonomy to status codes.
package http
