package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// sampler passes num out of every den calls; a zero ratio passes all of them.
type sampler struct {
	num, den atomic.Uint64
	calls    atomic.Uint64
}

func newSampler(num, den int) *sampler {
	s := &sampler{}
	s.set(num, den)
	return s
}

func (s *sampler) set(num, den int) {
	if num <= 0 || den <= 0 {
		num, den = 0, 0
	}
	if num > den {
		num = den
	}
	s.num.Store(uint64(num))
	s.den.Store(uint64(den))
	s.calls.Store(0)
}

func (s *sampler) allow() bool {
	den := s.den.Load()
	if den == 0 {
		return true
	}
	return (s.calls.Add(1)-1)%den < s.num.Load()
}

const defaultSampleNum, defaultSampleDen = 1, 50

// parseSample reads "n/d", "d" (one in d), "p%" or "all"/"off" (no sampling).
// Blank or malformed specs select the default of one in fifty.
func parseSample(spec string) (num, den int) {
	spec = strings.ToLower(strings.TrimSpace(spec))
	switch spec {
	case "":
		return defaultSampleNum, defaultSampleDen
	case "all", "off", "none", "0":
		return 0, 0
	}
	if pct, ok := strings.CutSuffix(spec, "%"); ok {
		if p, err := strconv.Atoi(strings.TrimSpace(pct)); err == nil && p > 0 {
			return p, 100
		}
		return defaultSampleNum, defaultSampleDen
	}
	if a, b, ok := strings.Cut(spec, "/"); ok {
		n, err1 := strconv.Atoi(strings.TrimSpace(a))
		d, err2 := strconv.Atoi(strings.TrimSpace(b))
		if err1 == nil && err2 == nil && n > 0 && d > 0 {
			return n, d
		}
		return defaultSampleNum, defaultSampleDen
	}
	if d, err := strconv.Atoi(spec); err == nil && d > 0 {
		return 1, d
	}
	return defaultSampleNum, defaultSampleDen
}
