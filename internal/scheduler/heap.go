package scheduler

import "time"

// retryItem is one entry in the pending-retries min-heap, ordered by
// wake-time.
type retryItem struct {
	wakeAt time.Time
	taskID string
}

// retryHeap is a container/heap min-heap by wakeAt.
type retryHeap []retryItem

func (h retryHeap) Len() int            { return len(h) }
func (h retryHeap) Less(i, j int) bool  { return h[i].wakeAt.Before(h[j].wakeAt) }
func (h retryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *retryHeap) Push(x interface{}) { *h = append(*h, x.(retryItem)) }
func (h *retryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
