package testdata

// Clamp limits x to the inclusive interval [lo, hi].
//
//goprove:pre lo <= hi
//goprove:post result >= lo && result <= hi
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// SafeHalf halves a nonnegative value.
//
//goprove:pre x >= 0.0
//goprove:post result >= 0.0 && result <= x
func SafeHalf(x float64) float64 {
	return x / 2.0
}

// Quarter composes SafeHalf with itself; it relies on SafeHalf's
// contract rather than its body.
//
//goprove:pre x >= 0.0
//goprove:post result >= 0.0 && result <= x
func Quarter(x float64) float64 {
	return SafeHalf(SafeHalf(x))
}
