package kraken

import (
	"strconv"
	"sync/atomic"
	"time"
)

// nonceSource hands out strictly increasing nonces for one API key.
// Kraken rejects any nonce at or below the highest one it has seen, so
// two calls in the same millisecond must still differ.
type nonceSource struct {
	last atomic.Int64
}

func newNonceSource() *nonceSource {
	n := &nonceSource{}
	n.last.Store(time.Now().UnixMilli())
	return n
}

// Next returns the next nonce as a decimal string. The wall clock is
// preferred; when it has not advanced past the previous nonce the
// value is bumped by one instead.
func (n *nonceSource) Next() string {
	for {
		prev := n.last.Load()
		next := time.Now().UnixMilli()
		if next <= prev {
			next = prev + 1
		}
		if n.last.CompareAndSwap(prev, next) {
			return strconv.FormatInt(next, 10)
		}
	}
}
