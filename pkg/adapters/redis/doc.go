// Package redis provides Redis-backed adapters: a shared call log and the
// distributed line locker used when several coordinators serve one account.
package redis
