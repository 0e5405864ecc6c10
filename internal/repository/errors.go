// Package repository holds the MySQL implementations of the stores used by
// the booking core. Every method takes a context and returns domain errors
// from apperr for missing rows, so callers never see sql.ErrNoRows.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// isDuplicateKey reports whether err is a MySQL unique-key violation.
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

// placeholders returns "(?, ?, …)" repeated rows times, comma separated.
func placeholders(rows, cols int) string {
	row := "("
	for i := 0; i < cols; i++ {
		if i > 0 {
			row += ", "
		}
		row += "?"
	}
	row += ")"
	out := make([]byte, 0, rows*(len(row)+1))
	for i := 0; i < rows; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, row...)
	}
	return string(out)
}
