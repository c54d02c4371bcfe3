// Package relay owns the network relay connection.
//
// Ownership boundary:
// - one background goroutine per Worker: connect, receive, heartbeat
// - translating inbound messages into deferred commands via a Translator
// - outbound sends from any goroutine
//
// The worker never touches host state. Everything it learns reaches the host
// as a command appended to the deferred queue.
package relay
