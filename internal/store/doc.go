// Package store defines the persistence interfaces and shared error
// values for the candidate queue. Implementations live under
// internal/platform (postgres for production, memstore for tests and
// local development); everything above this package depends only on the
// interfaces defined here.
package store
