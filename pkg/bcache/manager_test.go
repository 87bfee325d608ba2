package bcache

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/weberc2/easyfs/pkg/io"
	. "github.com/weberc2/easyfs/pkg/types"
)

func newTestManager(capacity int) (*Manager, *io.Buffer, *io.CountingDevice) {
	buf := io.NewMemoryDevice(64)
	dev := &io.CountingDevice{Inner: buf}
	return New(dev, &Options{Capacity: capacity}), buf, dev
}

func touch(t *testing.T, m *Manager, blocks ...Block) {
	t.Helper()
	for _, block := range blocks {
		e, err := m.Get(block)
		if err != nil {
			t.Fatalf("Manager.Get(%d): unexpected err: %v", block, err)
		}
		m.Release(e)
	}
}

func TestGetHitsCache(t *testing.T) {
	m, _, dev := newTestManager(4)
	touch(t, m, 3, 3, 3)

	if dev.Reads() != 1 {
		t.Fatalf("wanted `1` device read; found `%d`", dev.Reads())
	}
	wanted := Stats{Hits: 2, Misses: 1}
	if found := m.Stats(); found != wanted {
		t.Fatalf("wanted stats `%+v`; found `%+v`", wanted, found)
	}
}

func TestEviction(t *testing.T) {
	type testCase struct {
		name   string
		held   []Block
		touch  []Block
		load   Block
		wanted []Block
	}

	for _, tc := range []testCase{{
		name:   "fifo",
		touch:  []Block{1, 2, 3},
		load:   4,
		wanted: []Block{2, 3, 4},
	}, {
		name:   "hit-does-not-reorder",
		touch:  []Block{1, 2, 3, 1},
		load:   4,
		wanted: []Block{2, 3, 4},
	}, {
		name:   "skips-busy",
		held:   []Block{1},
		touch:  []Block{2, 3},
		load:   4,
		wanted: []Block{1, 3, 4},
	}, {
		name:   "skips-several-busy",
		held:   []Block{1, 2},
		touch:  []Block{3},
		load:   4,
		wanted: []Block{1, 2, 4},
	}} {
		t.Run(tc.name, func(t *testing.T) {
			m, _, _ := newTestManager(3)
			for _, block := range tc.held {
				if _, err := m.Get(block); err != nil {
					t.Fatalf("Manager.Get(%d): unexpected err: %v", block, err)
				}
			}
			touch(t, m, tc.touch...)
			touch(t, m, tc.load)

			if diff := cmp.Diff(tc.wanted, m.Cached()); diff != "" {
				t.Fatalf("unexpected resident blocks (-wanted +found):\n%s", diff)
			}
		})
	}
}

func TestCacheFull(t *testing.T) {
	m, _, _ := newTestManager(2)
	for _, block := range []Block{1, 2} {
		if _, err := m.Get(block); err != nil {
			t.Fatalf("Manager.Get(%d): unexpected err: %v", block, err)
		}
	}

	if _, err := m.Get(3); !errors.Is(err, ErrCacheFull) {
		t.Fatalf("wanted `%v`; found `%v`", ErrCacheFull, err)
	}
	if found := m.Len(); found != 2 {
		t.Fatalf("wanted `2` resident blocks; found `%d`", found)
	}
}

func TestDirtyWriteBackOnEviction(t *testing.T) {
	m, buf, dev := newTestManager(1)
	if err := m.Modify(5, 10, 3, func(p []byte) error {
		copy(p, "abc")
		return nil
	}); err != nil {
		t.Fatalf("Manager.Modify(): unexpected err: %v", err)
	}
	if dev.Writes() != 0 {
		t.Fatalf("wanted no writes before eviction; found `%d`", dev.Writes())
	}

	touch(t, m, 6)
	if dev.Writes() != 1 {
		t.Fatalf("wanted `1` write after eviction; found `%d`", dev.Writes())
	}
	start := 5*BlockSize + 10
	if found := string(buf.Bytes()[start : start+3]); found != "abc" {
		t.Fatalf("wanted `abc`; found `%s`", found)
	}

	// clean eviction does not write
	touch(t, m, 7)
	if dev.Writes() != 1 {
		t.Fatalf("wanted `1` write after clean eviction; found `%d`", dev.Writes())
	}
}

func TestEntrySync(t *testing.T) {
	m, _, dev := newTestManager(4)
	e, err := m.Get(2)
	if err != nil {
		t.Fatalf("Manager.Get(): unexpected err: %v", err)
	}
	defer m.Release(e)

	for i, step := range []struct {
		modify bool
		writes uint64
	}{
		{modify: false, writes: 0},
		{modify: true, writes: 1},
		{modify: false, writes: 1},
		{modify: true, writes: 2},
	} {
		if step.modify {
			if err := e.Modify(0, 1, func(p []byte) error {
				p[0]++
				return nil
			}); err != nil {
				t.Fatalf("Entry.Modify(): unexpected err: %v", err)
			}
		}
		if err := e.Sync(); err != nil {
			t.Fatalf("Entry.Sync(): unexpected err: %v", err)
		}
		if e.Dirty() {
			t.Fatalf("step %d: entry still dirty after sync", i)
		}
		if dev.Writes() != step.writes {
			t.Fatalf(
				"step %d: wanted `%d` writes; found `%d`",
				i,
				step.writes,
				dev.Writes(),
			)
		}
	}
}

func TestReleaseDoesNotSync(t *testing.T) {
	m, _, dev := newTestManager(4)
	if err := m.Modify(1, 0, 4, func(p []byte) error {
		p[0] = 1
		return nil
	}); err != nil {
		t.Fatalf("Manager.Modify(): unexpected err: %v", err)
	}
	if dev.Writes() != 0 {
		t.Fatalf("wanted `0` writes; found `%d`", dev.Writes())
	}
	if err := m.SyncAll(); err != nil {
		t.Fatalf("Manager.SyncAll(): unexpected err: %v", err)
	}
	if dev.Writes() != 1 {
		t.Fatalf("wanted `1` write; found `%d`", dev.Writes())
	}
	if found := m.Len(); found != 1 {
		t.Fatalf("wanted SyncAll to keep entries; found `%d`", found)
	}
}

func TestClose(t *testing.T) {
	m, buf, _ := newTestManager(4)
	for _, block := range []Block{1, 2, 3} {
		if err := m.Modify(block, BlockSize-1, 1, func(p []byte) error {
			p[0] = byte(block)
			return nil
		}); err != nil {
			t.Fatalf("Manager.Modify(): unexpected err: %v", err)
		}
	}

	held, err := m.Get(1)
	if err != nil {
		t.Fatalf("Manager.Get(): unexpected err: %v", err)
	}
	if err := m.Close(); !errors.Is(err, ErrEntryHeld) {
		t.Fatalf("wanted `%v` closing with a held entry; found `%v`", ErrEntryHeld, err)
	} else if errors.Is(err, ErrCacheFull) {
		t.Fatalf("closing with a held entry reported `%v`", ErrCacheFull)
	}
	m.Release(held)

	if err := m.Close(); err != nil {
		t.Fatalf("Manager.Close(): unexpected err: %v", err)
	}
	if found := m.Len(); found != 0 {
		t.Fatalf("wanted empty cache; found `%d` entries", found)
	}
	for _, block := range []Block{1, 2, 3} {
		if found := buf.Bytes()[Byte(block+1)*BlockSize-1]; found != byte(block) {
			t.Fatalf("block `%d`: wanted `%d`; found `%d`", block, block, found)
		}
	}
}

func TestViewOutOfBounds(t *testing.T) {
	m, _, _ := newTestManager(4)
	defer func() {
		if recover() == nil {
			t.Fatal("wanted panic for a view past the end of the block")
		}
	}()
	_ = m.Read(0, BlockSize-4, 8, func([]byte) error { return nil })
}

func TestReadDeviceError(t *testing.T) {
	m, _, _ := newTestManager(4)
	if _, err := m.Get(1000); !errors.Is(err, io.ErrOutOfRange) {
		t.Fatalf("wanted `%v`; found `%v`", io.ErrOutOfRange, err)
	}
	if found := m.Len(); found != 0 {
		t.Fatalf("wanted failed load to leave cache empty; found `%d`", found)
	}
}
