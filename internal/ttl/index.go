package ttl

import (
	"container/heap"
	"sync"
	"time"
)

// Entry 过期索引条目
type Entry struct {
	InboxID   string
	ExpiresAt time.Time
}

type entryHeap []Entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].ExpiresAt.Before(h[j].ExpiresAt) }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x interface{}) { *h = append(*h, x.(Entry)) }
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Index 按过期时间排序的最小堆索引，供清理任务快速取出到期邮箱。
// 索引是存储之外的加速结构，条目可能滞后于真实状态，
// 消费方必须在删除前与存储核对。
type Index struct {
	mu   sync.Mutex
	heap entryHeap
}

// NewIndex 构造空索引
func NewIndex() *Index {
	idx := &Index{}
	heap.Init(&idx.heap)
	return idx
}

// Register 登记一个邮箱的过期时间
func (x *Index) Register(inboxID string, expiresAt time.Time) {
	x.mu.Lock()
	defer x.mu.Unlock()
	heap.Push(&x.heap, Entry{InboxID: inboxID, ExpiresAt: expiresAt})
}

// PopExpired 弹出所有在 now 之前（含）到期的条目，最多 limit 个。
// limit <= 0 表示不限数量。
func (x *Index) PopExpired(now time.Time, limit int) []Entry {
	x.mu.Lock()
	defer x.mu.Unlock()

	var out []Entry
	for x.heap.Len() > 0 {
		if limit > 0 && len(out) >= limit {
			break
		}
		if x.heap[0].ExpiresAt.After(now) {
			break
		}
		out = append(out, heap.Pop(&x.heap).(Entry))
	}
	return out
}

// NextExpiring 返回最早到期的条目（不弹出）
func (x *Index) NextExpiring() (Entry, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.heap.Len() == 0 {
		return Entry{}, false
	}
	return x.heap[0], true
}

// Len 返回索引中的条目数
func (x *Index) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.heap.Len()
}
