// Package storage provides durable implementations of the queue.Store
// interface: an atomic JSON file snapshot, a Redis-backed snapshot, and
// a Postgres-backed snapshot. The queue engine never cares which one it
// is given; the storage medium is a pluggable boundary.
package storage
