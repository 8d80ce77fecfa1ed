// Package memory provides in-process adapters: a simulated Session Gateway for
// tests and demos, and a bounded call log.
package memory
