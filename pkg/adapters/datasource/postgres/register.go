package postgres

import (
	"github.com/ekaya-inc/ekaya-poolsource/pkg/adapters/datasource"
)

// Dialect is PostgreSQL's quoting and placeholder style.
var Dialect = datasource.Dialect{
	Name:          "postgres",
	QuoteOpen:     `"`,
	QuoteClose:    `"`,
	Placeholder:   datasource.PlaceholderDollar,
	TextType:      "TEXT",
	TimestampType: "TIMESTAMPTZ",
}

func init() {
	datasource.Register(datasource.DriverAdapterRegistration{
		Info: datasource.DriverAdapterInfo{
			Type:        "postgres",
			DisplayName: "PostgreSQL",
			Description: "Connect to PostgreSQL 12+, Aurora PostgreSQL, Supabase",
			Schemes:     []string{"postgres", "postgresql"},
		},
		Factory: NewConnector,
		Dialect: Dialect,
	})
}
