// Package hostthread owns host thread affinity.
//
// Ownership boundary:
// - capturing the host thread token once at startup
// - cheap "am I on the host thread?" checks from any goroutine
// - affinity assertions at host-state mutation sites
//
// Build with -tags hostdebug to make every violation fatal; release builds log
// and continue so a user-facing host application is never crashed.
package hostthread
