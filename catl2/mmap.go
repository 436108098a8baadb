package catl2

import (
	"fmt"
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"
)

// mapping is a refcounted memory mapping of a CATL v2 file (spec §5). Every
// Reader obtained via Open owns one reference; Share increments it without
// remapping, and Close decrements it, unmapping only when the count reaches
// zero. This folds the source's separate close/refcount variant into a
// single type, since Go's garbage collector gives no destructor hook to
// rely on instead.
type mapping struct {
	mu   sync.Mutex
	f    *os.File
	data mmap.MMap
	refs int
}

// newMapping opens path and maps it read-only in its entirety.
func newMapping(path string) (*mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileOpen, err)
	}
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %w", ErrFileOpen, err)
	}
	return &mapping{f: f, data: data, refs: 1}, nil
}

func (m *mapping) acquire() {
	m.mu.Lock()
	m.refs++
	m.mu.Unlock()
}

// release decrements the refcount, unmapping and closing the file once it
// reaches zero. Returns any error from the final unmap/close.
func (m *mapping) release() error {
	m.mu.Lock()
	m.refs--
	last := m.refs == 0
	m.mu.Unlock()
	if !last {
		return nil
	}
	err := m.data.Unmap()
	if cerr := m.f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFileOpen, err)
	}
	return nil
}

func (m *mapping) bytes() []byte { return m.data }
