// Package store persists subscriptions and repository statistics.
//
// Two backends exist behind the same snapshot interface:
//   - "file": a JSON snapshot replaced atomically via rename (default)
//   - "sqlite": a SQLite database file (enable with the sqlite build tag)
//
// DB is the only public entry point. It serializes every load-mutate-save
// sequence behind one mutex, which is what makes the "last seen" marker
// updates from the two concurrent producers (webhook handler, poll loop)
// safe without finer-grained locking.
package store
