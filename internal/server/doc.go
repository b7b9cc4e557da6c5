// Package server hosts the Fiber HTTP surface: the catch-all interception
// route, the request-ID middleware, and the shared upstream HTTP client.
// It stays transport-only — classification and caching decisions live in
// internal/router and internal/strategy, and reach this package through the
// ProxyHandler interface so tests can inject fakes. Control endpoints under
// /-/ are registered by the routes subpackage at bootstrap time.
package server
