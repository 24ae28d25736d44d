package mysql

import (
	"github.com/ekaya-inc/ekaya-poolsource/pkg/adapters/datasource"
)

// Dialect is MySQL's quoting and placeholder style.
var Dialect = datasource.Dialect{
	Name:          "mysql",
	QuoteOpen:     "`",
	QuoteClose:    "`",
	Placeholder:   datasource.PlaceholderQuestion,
	TextType:      "LONGTEXT",
	TimestampType: "DATETIME(6)",
}

func init() {
	datasource.Register(datasource.DriverAdapterRegistration{
		Info: datasource.DriverAdapterInfo{
			Type:        "mysql",
			DisplayName: "MySQL",
			Description: "Connect to MySQL 5.7+, MariaDB, Aurora MySQL",
			Schemes:     []string{"mysql"},
		},
		Factory: NewConnector,
		Dialect: Dialect,
	})
}
