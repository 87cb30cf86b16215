package cache

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// Location identifies a cache line by way and line index.
type Location struct {
	Way  int
	Line int
}

// TagStore is a set-associative tag array. Directory sets are the line
// indexes of the cache and directory ways are its ways.
type TagStore struct {
	ways     int
	lines    int
	lineSize int

	// Akita directory holding tag, valid and dirty state
	directory *akitacache.DirectoryImpl
}

// NewTagStore creates a tag store with the given geometry.
func NewTagStore(ways, lines, lineSize int) *TagStore {
	return &TagStore{
		ways:     ways,
		lines:    lines,
		lineSize: lineSize,
		directory: akitacache.NewDirectory(
			lines,
			ways,
			lineSize,
			akitacache.NewLRUVictimFinder(),
		),
	}
}

// Ways returns the associativity.
func (t *TagStore) Ways() int {
	return t.ways
}

// Lines returns the number of line indexes per way.
func (t *TagStore) Lines() int {
	return t.lines
}

// LineSize returns the line size in bytes.
func (t *TagStore) LineSize() int {
	return t.lineSize
}

// Align returns the line-aligned address.
func (t *TagStore) Align(addr uint64) uint64 {
	return (addr / uint64(t.lineSize)) * uint64(t.lineSize)
}

// LineIndex returns the line index an address maps to.
func (t *TagStore) LineIndex(addr uint64) int {
	return int((addr / uint64(t.lineSize)) % uint64(t.lines))
}

// Search looks up an address. It reports the location of the valid line
// holding the address, if any.
func (t *TagStore) Search(addr uint64) (Location, bool) {
	block := t.directory.Lookup(0, t.Align(addr))
	if block == nil || !block.IsValid {
		return Location{}, false
	}

	return Location{Way: block.WayID, Line: block.SetID}, true
}

// LineAddress reconstructs the address of the line stored at a location.
func (t *TagStore) LineAddress(loc Location) uint64 {
	return t.block(loc).Tag
}

// Valid reports whether the line holds valid data.
func (t *TagStore) Valid(loc Location) bool {
	return t.block(loc).IsValid
}

// Dirty reports whether the line was modified since it was filled.
func (t *TagStore) Dirty(loc Location) bool {
	return t.block(loc).IsDirty
}

// SetDirty updates the dirty bit.
func (t *TagStore) SetDirty(loc Location, dirty bool) {
	t.block(loc).IsDirty = dirty
}

// SetTag assigns a new line address to a location and marks it valid.
func (t *TagStore) SetTag(loc Location, addr uint64) {
	block := t.block(loc)
	block.Tag = t.Align(addr)
	block.IsValid = true
}

// Invalidate drops the line at a location.
func (t *TagStore) Invalidate(loc Location) {
	block := t.block(loc)
	block.IsValid = false
	block.IsDirty = false
}

// Reset invalidates every line.
func (t *TagStore) Reset() {
	t.directory.Reset()
}

func (t *TagStore) block(loc Location) *akitacache.Block {
	if loc.Way < 0 || loc.Way >= t.ways || loc.Line < 0 || loc.Line >= t.lines {
		panic("TagStore: location out of range")
	}

	return t.directory.GetSets()[loc.Line].Blocks[loc.Way]
}
