// Package mem defines the transactions exchanged between the GPU caches and
// the memory controller, and a simple memory controller to serve them.
package mem

import (
	"fmt"

	"github.com/sarchlab/akita/v4/sim"
)

// MaxTransactionSize is the largest payload a transaction can carry.
const MaxTransactionSize = 128

// MaxMemoryTickets bounds the transactions a unit can have in flight.
const MaxMemoryTickets = 256

// Command is the kind of a memory transaction.
type Command int

// Transaction commands.
const (
	ReadReq Command = iota
	ReadData
	Write
	MaskedWrite
)

func (c Command) String() string {
	switch c {
	case ReadReq:
		return "READ_REQ"
	case ReadData:
		return "READ_DATA"
	case Write:
		return "WRITE"
	case MaskedWrite:
		return "MASKED_WRITE"
	}
	return fmt.Sprintf("Command(%d)", int(c))
}

// MemState is a bitmask describing what the controller accepts this cycle.
type MemState uint32

// Controller state bits.
const (
	ReadAccept MemState = 1 << iota
	WriteAccept
)

// CanRead reports whether read requests are accepted.
func (s MemState) CanRead() bool {
	return s&ReadAccept != 0
}

// CanWrite reports whether writes are accepted.
func (s MemState) CanWrite() bool {
	return s&WriteAccept != 0
}

// SourceUnit identifies the kind of unit that issued a transaction.
type SourceUnit int

// Source units.
const (
	ColorWrite SourceUnit = iota
	ZStencil
	Texture
)

func (u SourceUnit) String() string {
	switch u {
	case ColorWrite:
		return "COLORWRITE"
	case ZStencil:
		return "ZSTENCILTEST"
	case Texture:
		return "TEXTUREUNIT"
	}
	return fmt.Sprintf("SourceUnit(%d)", int(u))
}

// BusWidth returns the bytes per cycle of the bus connecting a unit to the
// memory controller.
func (u SourceUnit) BusWidth() int {
	if u == Texture {
		return 16
	}
	return 32
}

// Transaction is a memory transaction.
type Transaction struct {
	// ID is a simulation-wide unique identifier
	ID string
	// Command is the transaction kind
	Command Command
	// Address is the first byte accessed
	Address uint64
	// Size is the number of bytes moved
	Size int
	// Data carries the write payload or the read result
	Data []byte
	// Mask holds one word per 4 data bytes for masked writes; a byte is
	// written only where its mask byte is 0xff
	Mask []uint32
	// Source is the kind of unit that issued the transaction
	Source SourceUnit
	// UnitID distinguishes units of the same kind
	UnitID int
	// Ticket matches responses to requests
	Ticket uint32
	// Cookie carries the trace tag of the request that caused the transfer
	Cookie string
}

func newTransaction(
	cmd Command,
	addr uint64,
	size int,
	source SourceUnit,
	unitID int,
	ticket uint32,
) *Transaction {
	if size <= 0 || size > MaxTransactionSize {
		panic(fmt.Sprintf("mem: transaction size %d out of range", size))
	}

	return &Transaction{
		ID:      sim.GetIDGenerator().Generate(),
		Command: cmd,
		Address: addr,
		Size:    size,
		Source:  source,
		UnitID:  unitID,
		Ticket:  ticket,
	}
}

// NewReadRequest creates a read request.
func NewReadRequest(
	addr uint64,
	size int,
	source SourceUnit,
	unitID int,
	ticket uint32,
) *Transaction {
	return newTransaction(ReadReq, addr, size, source, unitID, ticket)
}

// NewReadData creates the response to a read request.
func NewReadData(req *Transaction, data []byte) *Transaction {
	t := newTransaction(ReadData, req.Address, req.Size, req.Source, req.UnitID, req.Ticket)
	t.Data = data
	t.Cookie = req.Cookie

	return t
}

// NewWrite creates an unmasked write. The payload is copied.
func NewWrite(
	addr uint64,
	data []byte,
	source SourceUnit,
	unitID int,
	ticket uint32,
) *Transaction {
	t := newTransaction(Write, addr, len(data), source, unitID, ticket)
	t.Data = append([]byte(nil), data...)

	return t
}

// NewMaskedWrite creates a write of the bytes selected by mask.
func NewMaskedWrite(
	addr uint64,
	data []byte,
	mask []uint32,
	source SourceUnit,
	unitID int,
	ticket uint32,
) *Transaction {
	if len(mask)*4 < len(data) {
		panic("mem: write mask shorter than the data")
	}

	t := newTransaction(MaskedWrite, addr, len(data), source, unitID, ticket)
	t.Data = append([]byte(nil), data...)
	t.Mask = append([]uint32(nil), mask[:(len(data)+3)/4]...)

	return t
}

// IsWrite reports whether the transaction writes memory.
func (t *Transaction) IsWrite() bool {
	return t.Command == Write || t.Command == MaskedWrite
}

// BusCycles returns the cycles the transaction occupies the bus between
// the unit and the controller.
func (t *Transaction) BusCycles() int {
	if t.Command == ReadReq {
		return 1
	}

	width := t.Source.BusWidth()
	return (t.Size + width - 1) / width
}

// Port is the memory-side interface of a unit attached to the controller.
type Port interface {
	// Update advances the unit one cycle and returns the transaction it
	// issues in this cycle, if any.
	Update(cycle uint64, state MemState) *Transaction
	// ProcessMemoryTransaction delivers a response to the unit.
	ProcessMemoryTransaction(t *Transaction)
}

// Tracer observes the transactions handled by a controller.
type Tracer interface {
	Trace(cycle uint64, t *Transaction)
}
