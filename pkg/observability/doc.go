/*
Package observability turns coordinator events into metrics, logs and call-log entries.

Each constructor returns a domain.LifecycleHooks value; register as many as needed
with the coordinator. Hooks run synchronously, so they only do in-memory work or
short I/O.
*/
package observability
