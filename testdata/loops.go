package testdata

// SumSquares adds the first ten squares; the loop unrolls completely.
//
//goprove:post result == 285
func SumSquares() int {
	total := 0
	for i := 0; i < 10; i++ {
		total += i * i
	}
	return total
}

// Halve shrinks x below one; the loop guard stays symbolic and the
// verifier assumes termination at the unroll ceiling.
//
//goprove:pre x >= 0.0 && x <= 100.0
//goprove:post result < 1.0
func Halve(x float64) float64 {
	for x >= 1.0 {
		x = x / 2.0
	}
	return x
}

// Consume is suspension-capable, so it is skipped rather than
// verified.
//
//goprove:post result >= 0
func Consume(ch chan int) int {
	return <-ch
}
