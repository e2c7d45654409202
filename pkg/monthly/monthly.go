// Package monthly provides the pure per-day slot update used by the monthly
// summary documents: one numeric slot per calendar day, clamped and resized
// to the target month.
package monthly

// DefaultMaxValue caps a slot when the caller does not supply a tighter
// domain maximum.
const DefaultMaxValue = 5000

// UpdateSlot returns a copy of current with the slot for dayOfMonth set to
// value. The result always has length monthLength: a nil or empty input is
// zero-filled, a shorter one is zero-padded on the right, a longer one is
// truncated from the right. All other slots are preserved.
//
// dayOfMonth is clamped to [1, monthLength] rather than rejected; upstream
// callers have historically produced off-by-one days around timezone
// boundaries and the stored aggregate tolerates them by pulling the write to
// the nearest valid day. value is clamped to [0, maxValue]; maxValue <= 0
// selects DefaultMaxValue.
func UpdateSlot(current []float64, dayOfMonth, monthLength int, value, maxValue float64) []float64 {
	if maxValue <= 0 {
		maxValue = DefaultMaxValue
	}

	out := make([]float64, monthLength)
	copy(out, current)

	if dayOfMonth < 1 {
		dayOfMonth = 1
	}
	if dayOfMonth > monthLength {
		dayOfMonth = monthLength
	}

	if value < 0 {
		value = 0
	}
	if value > maxValue {
		value = maxValue
	}

	out[dayOfMonth-1] = value
	return out
}
