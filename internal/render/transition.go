package render

// DefaultTransitionSeconds is the transition window used when the
// configuration does not override it.
const DefaultTransitionSeconds = 0.5

// ApplyTransition combines two adjacent clips according to the requested
// transition. It is pure and never fails; unknown transitions degrade to
// plain concatenation.
//
// Duration rules:
//   - none:       dur(a) + dur(b)
//   - fade:       dur(a) + dur(b), fades at the junction, no overlap
//   - crossfade:  dur(a) + dur(b) - overlap, where overlap is the window,
//     reduced to min(dur(a), dur(b))/2 when the window exceeds the smaller
//     clip
//   - slide_left: dur(a) + window; b slides in after a ends rather than
//     overlapping it
func ApplyTransition(a, b Clip, transition Transition, window float64) Clip {
	if window <= 0 {
		window = DefaultTransitionSeconds
	}

	switch transition {
	case TransitionFade:
		return fadeJoin(a, b, window)
	case TransitionCrossfade:
		return crossfadeJoin(a, b, window)
	case TransitionSlideLeft:
		return slideLeftJoin(a, b, window)
	default:
		return concatJoin(a, b)
	}
}

func concatJoin(a, b Clip) Clip {
	out := a
	out.Segments = append(append([]Segment{}, a.Segments...), b.shiftedBy(a.Duration)...)
	out.Duration = a.Duration + b.Duration
	return out
}

func fadeJoin(a, b Clip, window float64) Clip {
	aSegs := append([]Segment{}, a.Segments...)
	if n := len(aSegs); n > 0 {
		fade := window
		if fade > aSegs[n-1].Length {
			fade = aSegs[n-1].Length
		}
		aSegs[n-1].FadeOut = fade
	}

	bSegs := b.shiftedBy(a.Duration)
	if len(bSegs) > 0 {
		fade := window
		if fade > bSegs[0].Length {
			fade = bSegs[0].Length
		}
		bSegs[0].FadeIn = fade
	}

	out := a
	out.Segments = append(aSegs, bSegs...)
	out.Duration = a.Duration + b.Duration
	return out
}

func crossfadeJoin(a, b Clip, window float64) Clip {
	shorter := a.Duration
	if b.Duration < shorter {
		shorter = b.Duration
	}
	overlap := window
	if overlap > shorter {
		overlap = shorter * 0.5
	}

	aSegs := append([]Segment{}, a.Segments...)
	if n := len(aSegs); n > 0 {
		aSegs[n-1].FadeOut = overlap
	}

	bSegs := b.shiftedBy(a.Duration - overlap)
	if len(bSegs) > 0 {
		bSegs[0].FadeIn = overlap
	}

	out := a
	out.Segments = append(aSegs, bSegs...)
	out.Duration = a.Duration + b.Duration - overlap
	return out
}

func slideLeftJoin(a, b Clip, window float64) Clip {
	bSegs := b.shiftedBy(a.Duration)
	if len(bSegs) > 0 {
		bSegs[0].Slide = SlideLeft
		bSegs[0].SlideWindow = window
	}

	out := a
	out.Segments = append(append([]Segment{}, a.Segments...), bSegs...)
	out.Duration = a.Duration + window
	return out
}
