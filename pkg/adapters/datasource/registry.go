package datasource

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ekaya-inc/ekaya-poolsource/pkg/apperrors"
)

// DriverAdapterInfo describes a registered driver adapter.
type DriverAdapterInfo struct {
	Type        string   `json:"type" yaml:"type"`                 // "postgres", "mssql", "mysql", "sqlite"
	DisplayName string   `json:"display_name" yaml:"display_name"` // "PostgreSQL", "Microsoft SQL Server"
	Description string   `json:"description" yaml:"description"`
	Schemes     []string `json:"schemes" yaml:"schemes"` // connection string prefixes, without ':'
}

// DriverAdapterRegistration contains info, connector factory and dialect for one database type.
type DriverAdapterRegistration struct {
	Info    DriverAdapterInfo
	Factory ConnectorFactory
	Dialect Dialect
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]DriverAdapterRegistration)
	schemes    = make(map[string]string) // scheme -> adapter type
)

// Register is called by each adapter's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg DriverAdapterRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
	for _, s := range reg.Info.Schemes {
		schemes[strings.ToLower(s)] = reg.Info.Type
	}
}

// RegisteredAdapters returns info for all registered adapters, sorted by type.
func RegisteredAdapters() []DriverAdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]DriverAdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// GetRegistration returns the registration for a database type.
func GetRegistration(dbType string) (DriverAdapterRegistration, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := registry[dbType]
	return reg, ok
}

// IsRegistered checks if an adapter type is available.
func IsRegistered(dbType string) bool {
	_, ok := GetRegistration(dbType)
	return ok
}

// SchemeOf returns the lower-cased text before the first ':' of a connection
// string, or "" if there is none.
func SchemeOf(connString string) string {
	i := strings.IndexByte(connString, ':')
	if i <= 0 {
		return ""
	}
	return strings.ToLower(connString[:i])
}

// StripScheme removes "scheme:" and an optional "//" from the front of a
// connection string, leaving the driver-native DSN.
func StripScheme(connString string) string {
	i := strings.IndexByte(connString, ':')
	if i < 0 {
		return connString
	}
	return strings.TrimPrefix(connString[i+1:], "//")
}

// Resolve finds the adapter serving a connection string by its scheme.
func Resolve(connString string) (DriverAdapterRegistration, error) {
	scheme := SchemeOf(connString)
	if scheme == "" {
		return DriverAdapterRegistration{}, fmt.Errorf("%w: connection string has no scheme", apperrors.ErrConfiguration)
	}

	registryMu.RLock()
	defer registryMu.RUnlock()

	dbType, ok := schemes[scheme]
	if !ok {
		return DriverAdapterRegistration{}, fmt.Errorf("%w: unsupported connection string scheme %q (not compiled in)", apperrors.ErrConfiguration, scheme)
	}
	return registry[dbType], nil
}
