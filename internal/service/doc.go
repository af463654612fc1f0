// Package service implements business logic for the rwsplit demo
// application.
//
// Service methods never pick a database. They declare a unit of work as
// read-only or read-write through the Transactional middleware and, for
// read-after-write consistency, add the ForcedPrimary middleware. The gate
// resolves the role when the first statement runs, so the middlewares may be
// chained in either order.
//
// # Services
//
// AccountService manages accounts. Reads are read-only units of work served
// by the replica; GetAccount and ListAccounts take a consistent flag that
// forces the primary.
//
// # Events
//
// Account changes and routing state corruption are published to an
// events.Publisher for relay to SSE clients.
package service
