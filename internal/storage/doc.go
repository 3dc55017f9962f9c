// Package storage persists the two snapshot tables owned by the bot: the
// subscription registry and per-tenant settings. Two interchangeable
// drivers exist, a JSON-file backend and a SQLite backend; both overwrite
// the whole table on every save.
package storage
