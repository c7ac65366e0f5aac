// Package gserver contains the read-only HTTP query service.
//
// Every request reads from an immutable store snapshot,
// so the server runs concurrently with the driver without coordination.
package gserver
