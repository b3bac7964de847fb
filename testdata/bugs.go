package testdata

// Negate claims a nonnegative result but delivers one only for
// nonpositive inputs.
//
//goprove:post result >= 0
func Negate(x int) int {
	return -x
}

// OffByOne loses its lower bound at zero.
//
//goprove:pre n >= 0
//goprove:post result >= 1
func OffByOne(n int) int {
	if n > 0 {
		return n
	}
	return n - 1
}
