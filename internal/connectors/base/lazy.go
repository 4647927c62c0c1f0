package base

// Lazy holds a value computed on first use. The result, including an
// error, is kept. Lazy is not safe for concurrent use.
type Lazy[T any] struct {
	done bool
	v    T
	err  error
}

// Get returns the memoised value, calling compute the first time.
func (l *Lazy[T]) Get(compute func() (T, error)) (T, error) {
	if !l.done {
		l.v, l.err = compute()
		l.done = true
	}
	return l.v, l.err
}

// Set stores v as if it had been computed.
func (l *Lazy[T]) Set(v T) {
	l.v, l.err, l.done = v, nil, true
}
