package disk

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/brambledb/bramble/util"
)

// Manager is a blocking byte-addressable page store: read_page,
// write_page, allocate_page, deallocate_page. Page ids are independent of
// physical file offsets so that deleting and reallocating pages doesn't
// fragment the id space.
type Manager struct {
	mu         sync.Mutex
	file       *os.File
	offsets    map[int64]int64
	freeSlots  []int64
	slotCount  int64
	capacity   int64
	nextPageID int64
	log        util.Logger
}

// NewManager opens a disk manager against an already-created file,
// growing it to hold at least defaultSlotCapacity pages.
func NewManager(file *os.File, log util.Logger) (*Manager, error) {
	if log == nil {
		log = util.NopLogger()
	}

	m := &Manager{
		file:       file,
		offsets:    make(map[int64]int64),
		capacity:   defaultSlotCapacity,
		nextPageID: HeaderPageID + 1,
		log:        log,
	}

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("disk: stat db file: %w", err)
	}

	minSize := m.capacity * physicalSlotSize
	if info.Size() < minSize {
		if err := file.Truncate(minSize); err != nil {
			return nil, fmt.Errorf("disk: resize db file: %w", err)
		}
	}

	return m, nil
}

// AllocatePage returns a fresh, never-before-used page id. The physical
// slot backing it is only carved out on first WritePage.
func (m *Manager) AllocatePage() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextPageID
	m.nextPageID++
	return id
}

// DeallocatePage releases the page id's physical slot for reuse. A no-op
// if the page was never written.
func (m *Manager) DeallocatePage(pageID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if offset, ok := m.offsets[pageID]; ok {
		m.freeSlots = append(m.freeSlots, offset)
		delete(m.offsets, pageID)
	}
}

// ReadPage returns the PageSize bytes stored for pageID. A page that was
// allocated but never written reads back as zeroed bytes. A checksum
// mismatch is logged but the bytes are still returned: this layer has no
// recovery mechanism.
func (m *Manager) ReadPage(pageID int64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	offset, ok := m.offsets[pageID]
	if !ok {
		return make([]byte, PageSize), nil
	}

	buf := make([]byte, physicalSlotSize)
	if _, err := m.file.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("disk: read page %d at offset %d: %w", pageID, offset, err)
	}

	data := buf[:PageSize]
	want := binary.LittleEndian.Uint64(buf[PageSize:])
	if got := xxhash.Sum64(data); got != want {
		m.log.Warn("disk: checksum mismatch on read", "pageId", pageID, "offset", offset)
	}

	return data, nil
}

// WritePage persists exactly PageSize bytes for pageID, appending a
// checksum trailer used to detect (not repair) corruption on the next
// read.
func (m *Manager) WritePage(pageID int64, data []byte) error {
	if len(data) != PageSize {
		return fmt.Errorf("disk: write page %d: expected %d bytes, got %d", pageID, PageSize, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	offset, ok := m.offsets[pageID]
	if !ok {
		var err error
		offset, err = m.allocateSlot()
		if err != nil {
			return err
		}
		m.offsets[pageID] = offset
	}

	buf := make([]byte, physicalSlotSize)
	copy(buf, data)
	binary.LittleEndian.PutUint64(buf[PageSize:], xxhash.Sum64(data))

	if _, err := m.file.WriteAt(buf, offset); err != nil {
		return fmt.Errorf("disk: write page %d at offset %d: %w", pageID, offset, err)
	}

	return nil
}

// allocateSlot hands back a free physical offset, reusing a deallocated
// slot before carving out a new one, growing the file when capacity runs
// out.
func (m *Manager) allocateSlot() (int64, error) {
	if n := len(m.freeSlots); n > 0 {
		offset := m.freeSlots[0]
		m.freeSlots = m.freeSlots[1:]
		return offset, nil
	}

	if m.slotCount+1 > m.capacity {
		m.capacity *= 2
		if err := m.file.Truncate(m.capacity * physicalSlotSize); err != nil {
			return 0, fmt.Errorf("disk: resize db file: %w", err)
		}
	}

	offset := m.slotCount * physicalSlotSize
	m.slotCount++
	return offset, nil
}
