// Package graph defines the narrow capability set the provisioner needs from
// the graph store: read-only query transactions and schema alteration.
package graph

import "context"

// ReadTxn is a read-only query transaction. Callers must Discard it on every
// exit path once the query is done.
type ReadTxn interface {
	// Query runs a query and returns the raw JSON response
	Query(ctx context.Context, query string) ([]byte, error)

	// Discard releases the transaction
	Discard(ctx context.Context) error
}

// Client is a connection to the graph store
type Client interface {
	// NewReadOnlyTxn opens a read-only transaction
	NewReadOnlyTxn() ReadTxn

	// Alter applies a schema document as a single mutation
	Alter(ctx context.Context, schema string) error
}
