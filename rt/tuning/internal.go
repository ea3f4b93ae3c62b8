package tuning

import (
	"bytes"
	"runtime"
	"strconv"
)

type varEntry interface {
	Key() string
	ResetToDefault() error
	ResetToLastValue() error

	snapshot() Item
	override() (OverrideItem, bool)
	setFromString(v string) error
}

// lockWrite takes the write gate, or fails with ErrReentrantWrite when the caller already
// holds it (an onChange callback writing back).
func (t *Tuning) lockWrite() error {
	gid := goroutineID()
	if t.writeMu.TryLock() {
		t.writeOwner.Store(gid)
		return nil
	}
	if owner := t.writeOwner.Load(); owner == gid {
		// gid == 0 means the id could not be parsed; refuse rather than risk a self-deadlock.
		return ErrReentrantWrite
	}
	t.writeMu.Lock()
	t.writeOwner.Store(gid)
	return nil
}

func (t *Tuning) unlockWrite() {
	t.writeOwner.Store(0)
	t.writeMu.Unlock()
}

// goroutineID parses the "goroutine N [" header of runtime.Stack. Write path only.
func goroutineID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b, ok := bytes.CutPrefix(b, []byte("goroutine "))
	if !ok {
		return 0
	}
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
