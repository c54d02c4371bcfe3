// Package deferred owns the cross-thread command handoff.
//
// Ownership boundary:
// - appending commands from any goroutine
// - draining and executing them on the host thread, once per host tick
//
// Ordering: commands run in the order they were appended, across every
// producer combined. A drain swaps out everything pending at that instant;
// anything appended while the batch runs waits for the next drain.
package deferred
