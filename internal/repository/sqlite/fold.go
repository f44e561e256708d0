package sqlite

import (
	"database/sql/driver"
	"strings"

	modsqlite "modernc.org/sqlite"
)

// foldFunc is the SQL name of foldCase. SQLite's own lower() and LIKE only
// fold ASCII, so keyword search compares fold(column) with a keyword lowered
// the same way in Go.
const foldFunc = "fold"

func init() {
	modsqlite.MustRegisterDeterministicScalarFunction(foldFunc, 1, foldCase)
}

func foldCase(_ *modsqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}
