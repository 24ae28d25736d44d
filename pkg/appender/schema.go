package appender

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-poolsource/pkg/adapters/datasource"
)

// Column names of the log table, in insert order.
var columns = []string{"event_time", "level", "logger_name", "message", "caller", "fields"}

// createTableSQL returns DDL that creates table unless it already exists.
func createTableSQL(d datasource.Dialect, table string) string {
	q := d.QuoteIdentifier
	body := fmt.Sprintf("(%s %s NOT NULL, %s VARCHAR(16) NOT NULL, %s VARCHAR(255), %s %s, %s VARCHAR(512), %s %s)",
		q("event_time"), d.TimestampType,
		q("level"),
		q("logger_name"),
		q("message"), d.TextType,
		q("caller"),
		q("fields"), d.TextType,
	)

	// SQL Server has no CREATE TABLE IF NOT EXISTS.
	if d.Name == "mssql" {
		return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s %s",
			strings.ReplaceAll(table, "'", "''"), d.QuoteQualified(table), body)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s %s", d.QuoteQualified(table), body)
}

func insertSQL(d datasource.Dialect, table string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.QuoteIdentifier(c)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.QuoteQualified(table), strings.Join(quoted, ", "), d.Binds(len(columns)))
}
