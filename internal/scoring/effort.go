package scoring

import "fmt"

// EffortLabel is a T-shirt size describing expected development effort.
type EffortLabel string

const (
	EffortXS  EffortLabel = "XS"
	EffortS   EffortLabel = "S"
	EffortM   EffortLabel = "M"
	EffortL   EffortLabel = "L"
	EffortXL  EffortLabel = "XL"
	EffortXXL EffortLabel = "XXL"
)

// Labels returns every recognized effort label, smallest first.
func Labels() []EffortLabel {
	return []EffortLabel{EffortXS, EffortS, EffortM, EffortL, EffortXL, EffortXXL}
}

// ParseEffortLabel reports whether s is one of the recognized labels.
// Matching is exact: "xs" is not a label.
func ParseEffortLabel(s string) (EffortLabel, bool) {
	switch l := EffortLabel(s); l {
	case EffortXS, EffortS, EffortM, EffortL, EffortXL, EffortXXL:
		return l, true
	}
	return "", false
}

// EffortScale maps each effort label to the weight used both as the score
// denominator and as the unit accumulated against capacity.
type EffortScale struct {
	XS  int `json:"XS" yaml:"xs"`
	S   int `json:"S" yaml:"s"`
	M   int `json:"M" yaml:"m"`
	L   int `json:"L" yaml:"l"`
	XL  int `json:"XL" yaml:"xl"`
	XXL int `json:"XXL" yaml:"xxl"`
}

// DefaultEffortScale returns the standard weight table. XXL is
// out of proportion: anything that size overflows a sprint on its own.
func DefaultEffortScale() EffortScale {
	return EffortScale{XS: 1, S: 3, M: 5, L: 8, XL: 13, XXL: 100}
}

// Weight returns the weight of a recognized label.
func (s EffortScale) Weight(l EffortLabel) int {
	switch l {
	case EffortXS:
		return s.XS
	case EffortS:
		return s.S
	case EffortM:
		return s.M
	case EffortL:
		return s.L
	case EffortXL:
		return s.XL
	case EffortXXL:
		return s.XXL
	default:
		return 0
	}
}

// WeightOf resolves a raw label string. Anything unrecognized weighs 0,
// which contributes nothing to effort and forces the score to 0.
func (s EffortScale) WeightOf(label string) int {
	l, ok := ParseEffortLabel(label)
	if !ok {
		return 0
	}
	return s.Weight(l)
}

// Validate checks that every weight is positive and strictly increasing
// across the label order.
func (s EffortScale) Validate() error {
	prev := 0
	for _, l := range Labels() {
		w := s.Weight(l)
		if w <= 0 {
			return fmt.Errorf("effort weight for %s must be positive, got %d", l, w)
		}
		if w <= prev {
			return fmt.Errorf("effort weight for %s (%d) must exceed the previous label's weight (%d)", l, w, prev)
		}
		prev = w
	}
	return nil
}

// EffortEntry is one row of the scale, for display.
type EffortEntry struct {
	Label  EffortLabel `json:"label"`
	Weight int         `json:"weight"`
}

// Entries lists the scale in label order.
func (s EffortScale) Entries() []EffortEntry {
	out := make([]EffortEntry, 0, len(Labels()))
	for _, l := range Labels() {
		out = append(out, EffortEntry{Label: l, Weight: s.Weight(l)})
	}
	return out
}
