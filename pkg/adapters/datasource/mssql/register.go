package mssql

import (
	"github.com/ekaya-inc/ekaya-poolsource/pkg/adapters/datasource"
)

// Dialect is SQL Server's quoting and placeholder style.
var Dialect = datasource.Dialect{
	Name:          "mssql",
	QuoteOpen:     "[",
	QuoteClose:    "]",
	Placeholder:   datasource.PlaceholderAtP,
	TextType:      "NVARCHAR(MAX)",
	TimestampType: "DATETIME2",
}

func init() {
	datasource.Register(datasource.DriverAdapterRegistration{
		Info: datasource.DriverAdapterInfo{
			Type:        "mssql",
			DisplayName: "Microsoft SQL Server",
			Description: "Connect to SQL Server 2016+, Azure SQL Database",
			Schemes:     []string{"sqlserver"},
		},
		Factory: NewConnector,
		Dialect: Dialect,
	})
}
