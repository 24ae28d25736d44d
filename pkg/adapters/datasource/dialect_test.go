package datasource

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDialect_QuoteIdentifier(t *testing.T) {
	ansi := Dialect{QuoteOpen: `"`, QuoteClose: `"`}
	brackets := Dialect{QuoteOpen: "[", QuoteClose: "]"}

	assert.Equal(t, `"log_events"`, ansi.QuoteIdentifier("log_events"))
	assert.Equal(t, `"a""b"`, ansi.QuoteIdentifier(`a"b`))
	assert.Equal(t, "[a]]b]", brackets.QuoteIdentifier("a]b"))
	assert.Equal(t, `"audit"."log_events"`, ansi.QuoteQualified("audit.log_events"))
}

func TestDialect_Binds(t *testing.T) {
	tests := []struct {
		style    PlaceholderStyle
		expected string
	}{
		{PlaceholderQuestion, "?, ?, ?"},
		{PlaceholderDollar, "$1, $2, $3"},
		{PlaceholderAtP, "@p1, @p2, @p3"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, Dialect{Placeholder: tt.style}.Binds(3))
	}
	assert.Equal(t, "", Dialect{}.Binds(0))
}
