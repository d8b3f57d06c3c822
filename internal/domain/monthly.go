package domain

// MonthlyValues maps a zero-based month index (0 = January) to a planned
// value in whole currency units. A nil map reads as twelve zeros.
type MonthlyValues map[int]int64

// Total sums the twelve monthly values.
func (m MonthlyValues) Total() int64 {
	var sum int64
	for _, v := range m {
		sum += v
	}
	return sum
}

// Clone returns an independent copy so a snapshot cannot be mutated through
// the live item.
func (m MonthlyValues) Clone() MonthlyValues {
	if m == nil {
		return nil
	}
	out := make(MonthlyValues, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Get returns the value of a month, treating missing entries as zero.
func (m MonthlyValues) Get(month int) int64 {
	return m[month]
}
