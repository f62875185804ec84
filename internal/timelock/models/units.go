package models

// BasisPoints is the scale shared by every percentage in a payload: two
// implied decimal digits, so 10000 is 100.00%.
const BasisPoints uint64 = 10000

// ValidFraction reports whether bps is a non-zero percentage of at most 100%.
func ValidFraction(bps uint64) bool {
	return bps > 0 && bps <= BasisPoints
}
