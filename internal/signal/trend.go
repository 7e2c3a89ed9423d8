package signal

import "sort"

// Trend is a label histogram over a window.
type Trend struct {
	Kind     Kind           `json:"kind"`
	Counts   map[string]int `json:"counts"`
	Total    int            `json:"total"`
	Dominant string         `json:"dominant,omitempty"`
}

// NewTrend builds a Trend from label counts. The dominant label is the most
// frequent one; ties go to the alphabetically first label.
func NewTrend(kind Kind, counts map[string]int) Trend {
	if counts == nil {
		counts = map[string]int{}
	}
	t := Trend{Kind: kind, Counts: counts}

	labels := make([]string, 0, len(counts))
	for l, n := range counts {
		labels = append(labels, l)
		t.Total += n
	}
	sort.Strings(labels)

	best := 0
	for _, l := range labels {
		if counts[l] > best {
			best = counts[l]
			t.Dominant = l
		}
	}
	return t
}
