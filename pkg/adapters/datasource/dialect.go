package datasource

import (
	"strconv"
	"strings"
)

// PlaceholderStyle is how a driver expects bind parameters to be written.
type PlaceholderStyle int

const (
	// PlaceholderQuestion writes ?, ?, ? (sqlite, mysql).
	PlaceholderQuestion PlaceholderStyle = iota
	// PlaceholderDollar writes $1, $2, $3 (postgres).
	PlaceholderDollar
	// PlaceholderAtP writes @p1, @p2, @p3 (sqlserver).
	PlaceholderAtP
)

// Dialect holds the SQL text differences between the supported databases.
type Dialect struct {
	Name        string
	QuoteOpen   string
	QuoteClose  string
	Placeholder PlaceholderStyle
	// TextType is the column type used for unbounded text.
	TextType string
	// TimestampType is the column type used for event timestamps.
	TimestampType string
}

// QuoteIdentifier quotes a table or column name. Embedded closing quote
// characters are doubled so the name can never terminate the identifier.
func (d Dialect) QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, d.QuoteClose, d.QuoteClose+d.QuoteClose)
	return d.QuoteOpen + escaped + d.QuoteClose
}

// QuoteQualified quotes each dot-separated part of a qualified name.
func (d Dialect) QuoteQualified(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = d.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

// Bind returns the placeholder for the n-th (1-based) parameter.
func (d Dialect) Bind(n int) string {
	switch d.Placeholder {
	case PlaceholderDollar:
		return "$" + strconv.Itoa(n)
	case PlaceholderAtP:
		return "@p" + strconv.Itoa(n)
	default:
		return "?"
	}
}

// Binds returns count placeholders joined with ", ".
func (d Dialect) Binds(count int) string {
	out := make([]string, count)
	for i := range out {
		out[i] = d.Bind(i + 1)
	}
	return strings.Join(out, ", ")
}
