//go:build gthreaddebug

package gthread

const debugStructural = true
