// Package query executes repository operations against a session. A
// Builder is bound to one entity type and turns filters, joins, loads and
// data payloads into bun queries.
package query
