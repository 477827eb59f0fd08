package crawl

import "sync"

// CategoryRef is a category page waiting to be crawled.
type CategoryRef struct {
	Name string
	URL  string
}

// categoryQueue is a thread-safe FIFO of category references.
//
// The queue is unbounded; a category page may enqueue any number of
// sub-categories.
type categoryQueue struct {
	mu   sync.Mutex
	refs []CategoryRef
}

func newCategoryQueue() *categoryQueue {
	return &categoryQueue{refs: make([]CategoryRef, 0, 64)}
}

// Push adds a reference to the back of the queue.
func (q *categoryQueue) Push(ref CategoryRef) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.refs = append(q.refs, ref)
}

// Pop removes and returns the front reference.
// Returns (CategoryRef{}, false) if the queue is empty.
func (q *categoryQueue) Pop() (CategoryRef, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.refs) == 0 {
		return CategoryRef{}, false
	}
	ref := q.refs[0]
	q.refs[0] = CategoryRef{}

	if len(q.refs) == 1 {
		q.refs = q.refs[:0]
	} else {
		q.refs = q.refs[1:]
	}
	return ref, true
}

// Len returns the current queue length.
func (q *categoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.refs)
}
