/*
Package inflight tracks which lines have an operation in flight.

Each line is a single-slot guard: an operation takes an owned token for every line it
touches, all-or-nothing, and a second operation on the same line is rejected with
domain.ErrLineBusy instead of waiting. Operations on unrelated lines never contend.

An optional ports.DistributedLocker extends the guard across processes that share the
same lines (for example two softphone instances registered on one account).
*/
package inflight
