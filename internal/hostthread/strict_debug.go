//go:build hostdebug

package hostthread

const defaultStrict = true
