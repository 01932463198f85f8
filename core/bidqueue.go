package core

import (
	"container/heap"

	"github.com/holiman/uint256"
)

// queuedBid is a valid decrypted bid waiting for settlement, with its implied
// unit price precomputed at decryption time.
type queuedBid struct {
	bidID        uint64
	amountIn     *uint256.Int
	minAmountOut *uint256.Int
	price        *uint256.Int
}

// bidQueue orders decrypted bids by descending implied price; ties go to the
// lower bid id, so earlier submissions win. Settlement drains the queue in a
// single pass, the only full iteration over a lot's bids in its lifetime.
type bidQueue struct {
	entries bidHeap
}

func (q *bidQueue) Insert(b *queuedBid) {
	heap.Push(&q.entries, b)
}

// PopMax removes and returns the highest-priced bid, or nil when empty.
func (q *bidQueue) PopMax() *queuedBid {
	if len(q.entries) == 0 {
		return nil
	}
	return heap.Pop(&q.entries).(*queuedBid)
}

func (q *bidQueue) Len() int {
	return len(q.entries)
}

type bidHeap []*queuedBid

func (h bidHeap) Len() int { return len(h) }

func (h bidHeap) Less(i, j int) bool {
	switch h[i].price.Cmp(h[j].price) {
	case 1:
		return true
	case -1:
		return false
	default:
		return h[i].bidID < h[j].bidID
	}
}

func (h bidHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *bidHeap) Push(x any) { *h = append(*h, x.(*queuedBid)) }

func (h *bidHeap) Pop() any {
	old := *h
	n := len(old)
	b := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return b
}
