package common

import "fmt"

// Assert checks a condition and panics if it is false.
//
// Use it for internal invariants only (a page chain that points at itself, a chunk index that
// disagrees with the logical size). Conditions that callers can provoke, such as a negative seek
// or an exhausted pool, are returned as Error values instead.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

// CheckedAdd returns a+b, or false if the sum overflows int64 or either operand is negative.
func CheckedAdd(a, b int64) (int64, bool) {
	if a < 0 || b < 0 {
		return 0, false
	}
	sum := a + b
	if sum < a {
		return 0, false
	}
	return sum, true
}
