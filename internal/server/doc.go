// Package server hosts the Fiber HTTP service: the request middleware chain,
// the artifact routes under /storages/:storage/:repository/*, and the error
// rendering that maps engine errors onto HTTP statuses. Diagnostic routes
// live in the routes subpackage so they can be mounted selectively.
package server
