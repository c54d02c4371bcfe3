// Package protocol groups the relay wire format.
//
// Layering, bottom up:
// - frame: fixed binary header plus payload
// - tlv: typed field encoding inside a payload
// - schema: message types, field ids, required-field validation
// - session: typed relay messages, connection defaults, retry backoff
package protocol
