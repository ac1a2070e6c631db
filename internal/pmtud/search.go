package pmtud

// searcher picks probe payload sizes and decides when discovery is done.
type searcher interface {
	// next returns the payload size of the next probe.
	next() int

	// record feeds back whether a probe of size reached the target.
	// done reports the largest payload known to pass once the search is
	// finished; err is ErrSizeExhausted when no size can pass.
	record(size int, passed bool) (best int, done bool, err error)
}

func newSearcher(cfg *Config) searcher {
	if cfg.Strategy == StrategyBinary {
		return newBinarySearch(cfg.InitialProbeSize, cfg.DecrementStep)
	}
	return &linearSearch{size: cfg.InitialProbeSize, step: cfg.DecrementStep}
}

// linearSearch shrinks by a fixed step until a probe passes.
type linearSearch struct {
	size int
	step int
}

func (s *linearSearch) next() int {
	return s.size
}

func (s *linearSearch) record(size int, passed bool) (int, bool, error) {
	if passed {
		return size, true, nil
	}
	if size-s.step < MinProbeSize {
		return 0, false, ErrSizeExhausted
	}
	s.size = size - s.step
	return 0, false, nil
}

// binarySearch narrows the window between the largest passing size and the
// smallest failing size until it is no wider than the resolution.
type binarySearch struct {
	pass       int // largest passing size, 0 if none yet
	fail       int // smallest failing size
	resolution int
	size       int
}

func newBinarySearch(initial, resolution int) *binarySearch {
	return &binarySearch{
		fail:       initial + 1,
		resolution: resolution,
		size:       initial,
	}
}

func (s *binarySearch) next() int {
	return s.size
}

func (s *binarySearch) record(size int, passed bool) (int, bool, error) {
	if passed {
		if size > s.pass {
			s.pass = size
		}
	} else if size < s.fail {
		s.fail = size
	}

	if s.pass > 0 && s.fail-s.pass <= s.resolution {
		return s.pass, true, nil
	}
	if s.pass == 0 && s.fail <= MinProbeSize {
		return 0, false, ErrSizeExhausted
	}

	low := s.pass + 1
	if s.pass == 0 {
		low = MinProbeSize
	}
	s.size = MTUSearchMidpoint(low, s.fail-1)
	return 0, false, nil
}

// MTUSearchMidpoint calculates the midpoint for binary search MTU discovery.
func MTUSearchMidpoint(low, high int) int {
	return (low + high) / 2
}
