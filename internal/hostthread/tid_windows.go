//go:build windows

package hostthread

import "golang.org/x/sys/windows"

func currentToken() Token {
	return Token(windows.GetCurrentThreadId())
}
