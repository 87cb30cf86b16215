package rop

import (
	"fmt"

	"github.com/sarchlab/gpucachesim/timing/compression"
)

// BlockState is the compression state of a block in memory.
type BlockState uint8

// Block states.
const (
	Clear BlockState = iota
	Uncompressed
	CompressedNormal
	CompressedBest
)

func (s BlockState) String() string {
	switch s {
	case Clear:
		return "clear"
	case Uncompressed:
		return "uncompressed"
	case CompressedNormal:
		return "compressed-normal"
	case CompressedBest:
		return "compressed-best"
	}
	return fmt.Sprintf("BlockState(%d)", int(s))
}

// Compressed reports whether the block is stored compressed.
func (s BlockState) Compressed() bool {
	return s == CompressedNormal || s == CompressedBest
}

func (s BlockState) level() compression.Level {
	switch s {
	case CompressedNormal:
		return compression.Normal
	case CompressedBest:
		return compression.Best
	case Uncompressed:
		return compression.Uncompressed
	}
	panic(fmt.Sprintf("rop: block state %v has no compression level", s))
}

func stateOf(level compression.Level) BlockState {
	switch level {
	case compression.Uncompressed:
		return Uncompressed
	case compression.Normal:
		return CompressedNormal
	case compression.Best:
		return CompressedBest
	}
	panic(fmt.Sprintf("rop: unsupported compression level %v", level))
}

// Mode is the operating mode of a block cache.
type Mode int

// Modes.
const (
	Normal Mode = iota
	Resetting
	Clearing
)

func (m Mode) String() string {
	switch m {
	case Normal:
		return "normal"
	case Resetting:
		return "resetting"
	case Clearing:
		return "clearing"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Statistics counts block cache activity.
type Statistics struct {
	Fetches            uint64
	Allocates          uint64
	FetchRejects       uint64
	ReadTransactions   uint64
	WriteTransactions  uint64
	BytesRead          uint64
	BytesWritten       uint64
	Fills              uint64
	ClearFills         uint64
	Spills             uint64
	BlocksUncompressed uint64
	BlocksNormal       uint64
	BlocksBest         uint64
	PortStalls         uint64
	HazardStalls       uint64
	StateTransactions  uint64
}
