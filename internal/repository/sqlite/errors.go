package sqlite

import (
	"errors"
	"strings"

	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Constraint violations are how the store reports duplicates and dangling
// references; the services never check-then-insert.

func isUniqueViolation(err error) bool {
	return hasConstraint(err, "UNIQUE constraint failed",
		sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY)
}

func isForeignKeyViolation(err error) bool {
	return hasConstraint(err, "FOREIGN KEY constraint failed",
		sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY)
}

// hasConstraint matches the extended result code, falling back to the
// message when the driver only reports the primary SQLITE_CONSTRAINT code.
func hasConstraint(err error, message string, codes ...int) bool {
	var se *moderncsqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code()
	for _, c := range codes {
		if code == c {
			return true
		}
	}
	return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), message)
}
