// Package session owns the plugin<->relay session wire helpers.
//
// Ownership boundary:
// - typed relay messages and their frame encoding
// - connection timeouts and retry backoff
//
// Decode failures inside a well-formed frame are ErrProtocol: the frame is
// dropped and the connection kept. Framing failures are left to the caller.
package session
