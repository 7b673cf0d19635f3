package optimizer

import "math"

func clamp(score float64) int {
	return int(math.Round(math.Max(0, math.Min(100, score))))
}

// Score computes the quality metrics of code. It is deterministic and uses
// the same signals as the suggestion generators.
func Score(code string) Metrics {
	sc := newScan(code)
	if len(sc.lines) == 0 {
		return Metrics{}
	}

	readability := 100.0
	readability -= math.Min(40, 10*float64(len(sc.terseIDs)))
	readability -= math.Min(30, 5*float64(len(sc.longLabels)))
	readability -= math.Min(20, 10*float64(len(sc.x.SingleDashLines)))

	compactness := 100.0
	if nodes := sc.g.NodeCount(); nodes > 0 {
		ratio := float64(len(sc.body)) / float64(nodes)
		if ratio > 1 {
			compactness -= (ratio - 1) * 25
		}
	}
	compactness -= math.Min(20, 2*float64(sc.blankLines))

	aesthetics := 60.0
	if sc.hasStyles() {
		aesthetics += 20
	}
	if consistentSpacing(sc) {
		aesthetics += 20
	}

	accessibility := 40.0
	if sc.hasTitle() {
		accessibility += 30
	}
	if sc.hasDescription() {
		accessibility += 30
	}

	return Metrics{
		ReadabilityScore:   clamp(readability),
		CompactnessScore:   clamp(compactness),
		AestheticsScore:    clamp(aesthetics),
		AccessibilityScore: clamp(accessibility),
	}
}
