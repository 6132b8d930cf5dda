// Package database provides connection management, sessions (units of work),
// migrations of registered models, SQL seeding, configuration loading, query
// logging and driver error classification on top of bun.
package database
