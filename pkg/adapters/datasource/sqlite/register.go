package sqlite

import (
	"github.com/ekaya-inc/ekaya-poolsource/pkg/adapters/datasource"
)

// Dialect is SQLite's quoting and placeholder style.
var Dialect = datasource.Dialect{
	Name:          "sqlite",
	QuoteOpen:     `"`,
	QuoteClose:    `"`,
	Placeholder:   datasource.PlaceholderQuestion,
	TextType:      "TEXT",
	TimestampType: "TIMESTAMP",
}

func init() {
	datasource.Register(datasource.DriverAdapterRegistration{
		Info: datasource.DriverAdapterInfo{
			Type:        "sqlite",
			DisplayName: "SQLite",
			Description: "Embedded SQLite 3 database files and in-memory databases",
			Schemes:     []string{"sqlite", "sqlite3"},
		},
		Factory: NewConnector,
		Dialect: Dialect,
	})
}
