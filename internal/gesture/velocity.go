package gesture

import "time"

type sample struct {
	x  float64
	at time.Time
}

// trimSamples drops samples older than window before now, keeping the newest
// sample that precedes the window so the velocity baseline spans it fully.
func trimSamples(samples []sample, now time.Time, window time.Duration) []sample {
	cutoff := now.Add(-window)
	keepFrom := 0
	for i, s := range samples {
		if s.at.Before(cutoff) {
			keepFrom = i
			continue
		}
		break
	}
	return samples[keepFrom:]
}

// velocity is the horizontal speed in px/ms over the samples that fall within
// window before releaseAt. Motion older than the window does not count, so a
// slow drag cannot turn into a fling.
func velocity(samples []sample, releaseAt time.Time, window time.Duration) float64 {
	if len(samples) < 2 {
		return 0
	}
	cutoff := releaseAt.Add(-window)
	last := samples[len(samples)-1]

	first := -1
	for i, s := range samples {
		if !s.at.Before(cutoff) {
			first = i
			break
		}
	}
	if first == -1 || first == len(samples)-1 {
		return 0
	}

	base := samples[first]
	ms := float64(last.at.Sub(base.at)) / float64(time.Millisecond)
	if ms <= 0 {
		return 0
	}
	return (last.x - base.x) / ms
}
