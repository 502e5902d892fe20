package analysis

// resampler maps accepted points onto a fixed time grid by linear
// interpolation between neighbouring points, so runs with different step
// histories share one time base.
type resampler struct {
	times []float64
	eps   float64
	next  int
	prev  *Sample
}

func newResampler(start, stop float64, points int) *resampler {
	return &resampler{
		times: LinearRange(start, stop, points),
		eps:   1e-9 * (stop - start) / float64(points-1),
	}
}

// push consumes the next accepted point and emits every grid time it
// reaches.
func (rs *resampler) push(s Sample, emit func(Sample) bool) error {
	for rs.next < len(rs.times) {
		t := rs.times[rs.next]
		if t > s.Time+rs.eps {
			break
		}
		from := s
		if rs.prev != nil && t < s.Time-rs.eps {
			from = *rs.prev
		}
		if !emit(interpolate(from, s, t)) {
			return errStopped
		}
		rs.next++
	}
	rs.prev = &s
	return nil
}

func interpolate(a, b Sample, t float64) Sample {
	w := 1.0
	if span := b.Time - a.Time; span > 0 {
		w = (t - a.Time) / span
	}
	return Sample{
		Time:           t,
		NodeVoltages:   lerp(a.NodeVoltages, b.NodeVoltages, w),
		BranchCurrents: lerp(a.BranchCurrents, b.BranchCurrents, w),
		Power:          lerp(a.Power, b.Power, w),
	}
}

func lerp[K comparable](a, b map[K]float64, w float64) map[K]float64 {
	out := make(map[K]float64, len(b))
	for k, vb := range b {
		out[k] = a[k] + w*(vb-a[k])
	}
	return out
}
