package quant

// EffectiveWindow returns the trailing-window length to use for a metric
// given how much history is available. The window grows from minObs up to
// maxWindow as observations accumulate, then stays capped at maxWindow.
// Returns false when there is not yet enough history for any window.
func EffectiveWindow(available, minObs, maxWindow int) (int, bool) {
	if available < minObs {
		return 0, false
	}
	if available > maxWindow {
		return maxWindow, true
	}
	return available, true
}

// SharedWindow returns the window length for a multi-asset computation:
// the longest history any participant has, capped at maxWindow and floored
// at minObs. Returns false when even the longest history is below minObs.
func SharedWindow(longestHistory, minObs, maxWindow int) (int, bool) {
	if longestHistory < minObs {
		return 0, false
	}
	if longestHistory > maxWindow {
		return maxWindow, true
	}
	return longestHistory, true
}
