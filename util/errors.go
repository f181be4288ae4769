package util

// BrambleError is the base error type for the storage core. It carries an
// optional wrapped cause so callers can use errors.Is/errors.As against the
// underlying disk or serialization failure.
type BrambleError struct {
	Message string
	Err     error
}

func (e *BrambleError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *BrambleError) Unwrap() error {
	return e.Err
}

// BufferPoolExhaustedError is returned when NewPage/FetchPage cannot
// obtain a frame: no free frame and the replacer has no evictable victim.
type BufferPoolExhaustedError struct {
	*BrambleError
}

func NewBufferPoolExhaustedError() *BufferPoolExhaustedError {
	return &BufferPoolExhaustedError{&BrambleError{Message: "buffer pool exhausted: no evictable frame"}}
}

// FatalStructuralError marks an abort of a B+-tree operation after a disk
// or allocation failure. Per spec, recovery of partial structural state is
// out of scope at this layer; the caller has already had all latches and
// pins released by the time this is returned.
type FatalStructuralError struct {
	*BrambleError
}

func NewFatalStructuralError(msg string, cause error) *FatalStructuralError {
	return &FatalStructuralError{&BrambleError{Message: msg, Err: cause}}
}

// AssertionError marks a programmer error per spec §7: evicting a
// non-evictable frame, recording access above capacity, removing a frame
// from the replacer that isn't evictable.
type AssertionError struct {
	*BrambleError
}

func NewAssertionError(msg string) *AssertionError {
	return &AssertionError{&BrambleError{Message: msg}}
}
