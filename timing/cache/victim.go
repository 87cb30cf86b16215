package cache

// maxRecentWays bounds the recent-access list kept per line index.
const maxRecentWays = 4

// victimSelector is a pseudo-LRU replacement policy. For every line index it
// keeps a short list of recently accessed ways, oldest first, and a rotating
// pointer used to scan the ways that are not in the list.
type victimSelector struct {
	ways     int
	recent   [][]int
	firstWay []int
}

func newVictimSelector(ways, lines int) *victimSelector {
	n := maxRecentWays
	if ways < n {
		n = ways
	}

	s := &victimSelector{
		ways:     ways,
		recent:   make([][]int, lines),
		firstWay: make([]int, lines),
	}
	for i := range s.recent {
		s.recent[i] = make([]int, n)
	}
	s.reset()

	return s
}

func (s *victimSelector) reset() {
	for line := range s.recent {
		for j := range s.recent[line] {
			s.recent[line][j] = j
		}
		s.firstWay[line] = 0
	}
}

// access moves a way to the most recent end of the list of its line.
func (s *victimSelector) access(loc Location) {
	list := s.recent[loc.Line]

	pos := 0
	for i, way := range list {
		if way == loc.Way {
			pos = i
			break
		}
	}

	copy(list[pos:], list[pos+1:])
	list[len(list)-1] = loc.Way
}

// next suggests a victim way for a line index. The suggestion may still be
// busy when every way is in use, so callers must check it.
func (s *victimSelector) next(line int, busy func(way int) bool) int {
	s.firstWay[line] = (s.firstWay[line] + 1) % s.ways

	list := s.recent[line]
	for way := s.firstWay[line]; way < s.ways; way++ {
		if busy(way) || contains(list, way) {
			continue
		}

		return way
	}

	for _, way := range list {
		if !busy(way) {
			return way
		}
	}

	return 0
}

func contains(list []int, way int) bool {
	for _, w := range list {
		if w == way {
			return true
		}
	}

	return false
}
