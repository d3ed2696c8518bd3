package discovery

// Result ceilings per apuration pass. The first two passes over a
// neighborhood sweep wide; later passes only top up.
const (
	InitialApurationLimit = 666
	RepeatApurationLimit  = 20
	SteadyApurationLimit  = 18
)

// NextLimit returns the result ceiling for a neighborhood that has completed
// n scoped searches: 666 for n=0 and n=1, 20 for n in 2..5 and 18 from 6 on.
func NextLimit(n int) int {
	switch {
	case n <= 1:
		return InitialApurationLimit
	case n <= 5:
		return RepeatApurationLimit
	default:
		return SteadyApurationLimit
	}
}
