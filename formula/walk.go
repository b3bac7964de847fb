package formula

// SizeAtLeast reports whether the term tree of e holds at least n
// nodes. The walk stops as soon as the answer is known, so probing a
// huge (or heavily shared) term with a small n stays cheap.
func SizeAtLeast(e Expr, n int) bool {
	rem := n
	var walk func(Expr)
	walk = func(e Expr) {
		if rem <= 0 {
			return
		}
		rem--
		switch e := e.(type) {
		case Binary:
			walk(e.X)
			walk(e.Y)
		case Neg:
			walk(e.X)
		case Not:
			walk(e.X)
		case Compare:
			walk(e.X)
			walk(e.Y)
		case And:
			for _, x := range e.Xs {
				walk(x)
			}
		case Or:
			for _, x := range e.Xs {
				walk(x)
			}
		case Ite:
			walk(e.Cond)
			walk(e.Then)
			walk(e.Else)
		case App:
			for _, x := range e.Args {
				walk(x)
			}
		case Tuple:
			for _, x := range e.Elems {
				walk(x)
			}
		case At:
			walk(e.Tup)
		case Cast:
			walk(e.X)
		}
	}
	walk(e)
	return rem <= 0
}
