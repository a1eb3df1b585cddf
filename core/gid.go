package core

import "runtime"

// goroutineID returns the numeric id of the calling goroutine by parsing the
// header line of its runtime.Stack dump ("goroutine N [running]:").
//
// The runtime deliberately exposes no goroutine identity, so per-goroutine
// depth bookkeeping falls back to this well-known parse. The header format
// has been stable across every Go release; the buffer only needs to cover
// the first line.
func goroutineID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = b[len("goroutine "):]

	var id uint64
	for _, c := range b {
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + uint64(c-'0')
	}
	return id
}
