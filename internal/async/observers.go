package async

import "sync"

// Observers is a set of callbacks notified with values of type T.
// The zero value is ready to use.
type Observers[T any] struct {
	mu   sync.Mutex
	fns  map[int]func(T)
	next int
}

// Subscribe adds fn and returns a function that removes it.
func (o *Observers[T]) Subscribe(fn func(T)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fns == nil {
		o.fns = map[int]func(T){}
	}
	key := o.next
	o.next++
	o.fns[key] = fn
	return func() {
		o.mu.Lock()
		delete(o.fns, key)
		o.mu.Unlock()
	}
}

// Notify calls every subscribed function with v on the calling goroutine.
func (o *Observers[T]) Notify(v T) {
	o.mu.Lock()
	fns := make([]func(T), 0, len(o.fns))
	for _, fn := range o.fns {
		fns = append(fns, fn)
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}
