package database

import (
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
)

func Excluded(column string) string {
	return fmt.Sprintf("%s = EXCLUDED.%s", column, column)
}

// Upsert appends an ON CONFLICT clause that overwrites the given columns from the excluded row
func Upsert(ib *sqlbuilder.InsertBuilder, conflict []string, columns ...string) *sqlbuilder.InsertBuilder {
	sets := make([]string, 0, len(columns))
	for _, c := range columns {
		sets = append(sets, Excluded(c))
	}
	ib.SQL(fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(conflict, ", "), strings.Join(sets, ", ")))
	return ib
}

// NewInsertBuilder returns a postgres flavored insert builder
func NewInsertBuilder() *sqlbuilder.InsertBuilder {
	return sqlbuilder.PostgreSQL.NewInsertBuilder()
}

// NewSelectBuilder returns a postgres flavored select builder
func NewSelectBuilder() *sqlbuilder.SelectBuilder {
	return sqlbuilder.PostgreSQL.NewSelectBuilder()
}

// NewDeleteBuilder returns a postgres flavored delete builder
func NewDeleteBuilder() *sqlbuilder.DeleteBuilder {
	return sqlbuilder.PostgreSQL.NewDeleteBuilder()
}

// NewUpdateBuilder returns a postgres flavored update builder
func NewUpdateBuilder() *sqlbuilder.UpdateBuilder {
	return sqlbuilder.PostgreSQL.NewUpdateBuilder()
}

// IsNoRows reports whether a query found nothing
func IsNoRows(err error) bool {
	return err != nil && err.Error() == "sql: no rows in result set"
}
