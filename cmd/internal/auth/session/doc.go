// Package session owns the console's authentication state for one browser tab session.
//
// A Store holds the upstream API token and a readiness phase. It starts Initializing,
// loads any previously saved token from tab-scoped Storage exactly once, and then stays
// Ready for the rest of its life. SaveToken and Logout are the only mutators; every other
// component reads a Snapshot.
//
// Storage is a small key-value contract (get/set/remove) scoped to one tab session.
// Backends for memory, Redis, Postgres and bbolt live in this package; Registry maps
// tab session ids to live Stores.
//
// HTTP concerns (cookies, redirects) are out of scope here.
package session
