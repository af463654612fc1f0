// Package handler implements HTTP request handlers for the rwsplit API.
//
// # Handlers
//
// AccountHandler serves account CRUD. Reads accept ?consistent=true to force
// the primary for read-after-write consistency; otherwise they are served by
// the replica.
//
// RoutingHandler exposes pool registry statistics and a health check.
//
// Middleware provides panic recovery, request logging and CORS support.
//
// # Response Format
//
// Success responses return JSON data with appropriate status codes (200, 201,
// 204). Error responses return JSON with {error, details} structure. Domain
// and routing errors map to status codes in statusFor.
package handler
