//go:build !linux && !windows

package hostthread

import (
	"runtime"
)

// Platforms without a cheap thread-id call fall back to the goroutine id.
// The host goroutine is locked to its thread, so the two are equivalent here.
func currentToken() Token {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// "goroutine 123 [running]:"
	var id int64
	for i := len("goroutine "); i < n; i++ {
		c := buf[i]
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + int64(c-'0')
	}
	return Token(id)
}
