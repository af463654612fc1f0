// Package domain defines the account entity used by the rwsplit demo
// service.
//
// Accounts are plain values with validation; they know nothing about which
// store they are read from or written to.
//
// # Errors
//
// ErrNotFound and ErrConflict are returned by repositories and services and
// mapped to HTTP status codes by the handler layer. ValidationError names the
// offending field.
package domain
