package db

import (
	"strings"

	"github.com/jackc/pgx/v5"
)

// QualifiedIdentifier quotes a possibly schema-qualified name ("schema.table").
func QualifiedIdentifier(name string) string {
	parts := strings.SplitN(name, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{name}.Sanitize()
}

// Identifier quotes a single column or table name.
func Identifier(name string) string {
	return pgx.Identifier{name}.Sanitize()
}
