package aggregate

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
)

// CleanStayFunc is the SQL function that turns stay-length text into a number.
const CleanStayFunc = "clean_stay"

func init() {
	if err := sqlite.RegisterDeterministicScalarFunction(CleanStayFunc, 1, cleanStaySQL); err != nil {
		panic(fmt.Sprintf("register %s: %v", CleanStayFunc, err))
	}
}

// CleanStayLength parses an average-length-of-stay value. Right-censored
// values carry a trailing qualifier ("5.2 +" means at least 5.2 days); the
// qualifier is dropped and the lower bound is returned as if it were exact,
// so means over censored rows are understated.
func CleanStayLength(text string) (float64, error) {
	s := strings.TrimSpace(text)
	s = strings.TrimRightFunc(s, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	})
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("stay length %q has no numeric part", text)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("stay length %q: %w", text, err)
	}
	f, _ := d.Float64()
	return f, nil
}

func cleanStaySQL(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	case []byte:
		return CleanStayLength(string(v))
	case string:
		return CleanStayLength(v)
	default:
		return nil, fmt.Errorf("%s: unsupported argument %T", CleanStayFunc, v)
	}
}
