package sqlitekit

import "sync"

// writeGate serializes every write-capable operation on one Conn. It is
// a binary gate: while one goroutine holds it, all other writers block
// with no timeout. Reentrancy is structural rather than tracked per
// goroutine: the *Tx handle a transaction body receives is the
// capability proving the gate is already held, and all nested writes go
// through that handle, so a holder never reacquires.
type writeGate struct {
	mu sync.Mutex
}

// acquire blocks until the gate is free. It cannot fail.
func (g *writeGate) acquire() {
	g.mu.Lock()
}

// release opens the gate for the next writer.
func (g *writeGate) release() {
	g.mu.Unlock()
}

// withExclusiveWriteAccess runs work while holding the gate.
func (g *writeGate) withExclusiveWriteAccess(work func() error) error {
	g.acquire()
	defer g.release()
	return work()
}
