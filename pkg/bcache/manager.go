package bcache

import (
	"fmt"
	stdio "io"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/weberc2/easyfs/pkg/io"
	. "github.com/weberc2/easyfs/pkg/types"
)

const (
	DefaultCapacity = 16

	ErrCacheFull ConstError = "every block cache entry is in use"
	ErrEntryHeld ConstError = "block cache entry still held"
)

type Options struct {
	Capacity int
	Logger   logrus.FieldLogger
}

// Manager is a bounded cache of device blocks. Eviction is FIFO over
// insertion order, skipping entries that are still held; this keeps the
// working set correct but makes no attempt at LRU-quality hit rates.
type Manager struct {
	device   io.BlockDevice
	capacity int
	logger   logrus.FieldLogger

	mutex   sync.Mutex
	queue   []*Entry
	byBlock map[Block]*Entry
	stats   Stats
}

type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

func New(device io.BlockDevice, options *Options) *Manager {
	m := Manager{device: device, capacity: DefaultCapacity}
	if options != nil {
		if options.Capacity > 0 {
			m.capacity = options.Capacity
		}
		m.logger = options.Logger
	}
	if m.logger == nil {
		logger := logrus.New()
		logger.SetOutput(stdio.Discard)
		m.logger = logger
	}
	m.queue = make([]*Entry, 0, m.capacity)
	m.byBlock = make(map[Block]*Entry, m.capacity)
	return &m
}

// Get returns the entry for `block`, loading it on a miss. Every successful
// call must be paired with `Release`.
func (m *Manager) Get(block Block) (*Entry, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if e, exists := m.byBlock[block]; exists {
		e.refs++
		m.stats.Hits++
		return e, nil
	}

	m.stats.Misses++
	if len(m.queue) >= m.capacity {
		if err := m.evictLocked(); err != nil {
			return nil, fmt.Errorf("loading block `%d`: %w", block, err)
		}
	}

	e := &Entry{block: block, device: m.device, refs: 1}
	if err := m.device.ReadBlock(block, &e.data); err != nil {
		return nil, fmt.Errorf("loading block `%d`: %w", block, err)
	}
	m.queue = append(m.queue, e)
	m.byBlock[block] = e
	return e, nil
}

// Release drops a reference obtained from `Get`.
func (m *Manager) Release(e *Entry) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if e.refs <= 0 {
		panic(fmt.Sprintf("releasing unreferenced block `%d`", e.block))
	}
	e.refs--
}

// evictLocked drops the oldest entry nobody holds, writing it back first if
// it is dirty.
func (m *Manager) evictLocked() error {
	for i, e := range m.queue {
		if e.refs > 0 {
			continue
		}
		dirty := e.Dirty()
		if err := e.Sync(); err != nil {
			return fmt.Errorf("evicting block `%d`: %w", e.block, err)
		}
		m.queue = append(m.queue[:i], m.queue[i+1:]...)
		delete(m.byBlock, e.block)
		m.stats.Evictions++
		m.logger.WithFields(logrus.Fields{
			"block": e.block,
			"dirty": dirty,
		}).Debug("evicted cached block")
		return nil
	}
	return ErrCacheFull
}

// Read fetches `block` and calls `f` with a read-only view of `size` bytes
// at `offset`, releasing the block afterwards.
func (m *Manager) Read(
	block Block,
	offset Byte,
	size Byte,
	f func(p []byte) error,
) error {
	e, err := m.Get(block)
	if err != nil {
		return err
	}
	defer m.Release(e)
	return e.Read(offset, size, f)
}

// Modify is `Read` with a writable view; the block is marked dirty.
func (m *Manager) Modify(
	block Block,
	offset Byte,
	size Byte,
	f func(p []byte) error,
) error {
	e, err := m.Get(block)
	if err != nil {
		return err
	}
	defer m.Release(e)
	return e.Modify(offset, size, f)
}

// SyncAll writes back every dirty entry. Entries stay cached.
func (m *Manager) SyncAll() error {
	// snapshot under the manager lock but sync outside of it: a caller may
	// hold an entry lock while waiting on the manager lock in `Get`.
	m.mutex.Lock()
	entries := make([]*Entry, len(m.queue))
	copy(entries, m.queue)
	m.mutex.Unlock()

	for _, e := range entries {
		if err := e.Sync(); err != nil {
			return fmt.Errorf("syncing block cache: %w", err)
		}
	}
	return nil
}

// Close writes back every entry and empties the cache. It fails if an
// entry is still held.
func (m *Manager) Close() error {
	if err := m.SyncAll(); err != nil {
		return fmt.Errorf("closing block cache: %w", err)
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for _, e := range m.queue {
		if e.refs > 0 {
			return fmt.Errorf(
				"closing block cache: block `%d`: %w",
				e.block,
				ErrEntryHeld,
			)
		}
		// entries dirtied between the SyncAll above and now
		if err := e.Sync(); err != nil {
			return fmt.Errorf("closing block cache: %w", err)
		}
	}
	m.queue = m.queue[:0]
	m.byBlock = make(map[Block]*Entry, m.capacity)
	return nil
}

func (m *Manager) Len() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.queue)
}

func (m *Manager) Stats() Stats {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.stats
}

// Cached lists the resident blocks in queue order.
func (m *Manager) Cached() []Block {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	out := make([]Block, len(m.queue))
	for i, e := range m.queue {
		out[i] = e.block
	}
	return out
}
