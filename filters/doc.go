// Package filters translates caller supplied filter specifications into
// squirrel predicates. Three strategies exist: simple equality maps,
// advanced operator maps and django-like lookup chains.
package filters
