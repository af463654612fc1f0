// Package repository defines the data access interfaces for accounts.
//
// Repository methods take the Querier to run against as an argument instead
// of holding a database handle. Callers pass the unit of work that the
// routing gate handed them, and the gate decides whether the statements land
// on the primary or the replica.
//
// The sqlite subpackage provides the implementation and the schema
// migration applied to every configured database at startup.
package repository
