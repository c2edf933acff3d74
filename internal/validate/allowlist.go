package validate

import "strings"

// funcAllowlist is the fixed set of functions a query may call. Everything
// not listed is rejected by name. The set covers aggregation and the common
// scalar string/numeric/datetime helpers; nothing here can mutate session
// state, sleep, or read files.
var funcAllowlist = map[string]struct{}{
	// Aggregates
	"count": {},
	"sum":   {},
	"avg":   {},
	"min":   {},
	"max":   {},

	// Numeric
	"abs":   {},
	"round": {},
	"floor": {},
	"ceil":  {},
	"power": {},
	"sqrt":  {},
	"mod":   {},

	// String
	"length":    {},
	"lower":     {},
	"upper":     {},
	"substr":    {},
	"substring": {},
	"trim":      {},
	"ltrim":     {},
	"rtrim":     {},
	"replace":   {},
	"concat":    {},
	"instr":     {},
	"hex":       {},

	// Null handling
	"coalesce": {},
	"nullif":   {},
	"ifnull":   {},

	// Date/time (read-only formatting and arithmetic)
	"date":       {},
	"time":       {},
	"datetime":   {},
	"strftime":   {},
	"julianday":  {},
	"date_trunc": {},
	"extract":    {},
	"now":        {},
}

// allowedFunc reports whether the named function is on the allowlist.
// Matching is case-insensitive.
func allowedFunc(name string) bool {
	_, ok := funcAllowlist[strings.ToLower(name)]
	return ok
}
