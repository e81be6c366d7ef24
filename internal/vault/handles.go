package vault

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
)

// Handle is the opaque token returned for an open file. The caller passes it
// back on read, write, seek and close.
type Handle uint32

// InvalidHandle is never handed out; callers use it to mean "no handle".
const InvalidHandle Handle = 0

// ErrTooManyHandles is returned when every handle value is in use.
var ErrTooManyHandles = errors.New("no free file handles")

// HandleTable maps handles to open files. It is safe for concurrent use.
type HandleTable struct {
	mu    sync.Mutex
	next  uint32
	limit uint64
	files map[Handle]*os.File
}

// NewHandleTable creates an empty table.
func NewHandleTable() *HandleTable {
	return &HandleTable{limit: math.MaxUint32, files: make(map[Handle]*os.File)}
}

// SetLimit caps the number of files open at once. Values outside
// 1..math.MaxUint32 restore the default.
func (t *HandleTable) SetLimit(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n <= 0 || uint64(n) > math.MaxUint32 {
		t.limit = math.MaxUint32
		return
	}
	t.limit = uint64(n)
}

// Allocate registers f and returns its handle.
func (t *HandleTable) Allocate(f *os.File) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if uint64(len(t.files)) >= t.limit {
		return InvalidHandle, ErrTooManyHandles
	}
	for {
		t.next++
		h := Handle(t.next)
		// The counter wraps. A handle equal to InvalidHandle, or one still
		// held from the previous lap, is discarded and another is drawn.
		if h == InvalidHandle {
			continue
		}
		if _, busy := t.files[h]; busy {
			continue
		}
		t.files[h] = f
		return h, nil
	}
}

// Get returns the file for h.
func (t *HandleTable) Get(h Handle) (*os.File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.files[h]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHandle, h)
	}
	return f, nil
}

// Release removes h and returns its file. The file is not closed.
func (t *HandleTable) Release(h Handle) (*os.File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.files[h]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHandle, h)
	}
	delete(t.files, h)
	return f, nil
}

// Len returns the number of open handles.
func (t *HandleTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.files)
}
