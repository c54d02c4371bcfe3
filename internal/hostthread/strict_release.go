//go:build !hostdebug

package hostthread

const defaultStrict = false
