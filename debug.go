//go:build !gthreaddebug

package gthread

// debugStructural turns structural errors into panics. Build with the
// gthreaddebug tag to enable it.
const debugStructural = false
