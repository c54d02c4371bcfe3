//go:build linux

package hostthread

import "golang.org/x/sys/unix"

func currentToken() Token {
	return Token(unix.Gettid())
}
