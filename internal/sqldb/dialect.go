package sqldb

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Dialect holds the driver specifics the components need.
type Dialect struct {
	Name   string
	Driver string
	// Placeholder formats the n-th (1-based) bind parameter.
	Placeholder func(n int) string
}

// Built-in dialects.
var (
	SQLite = Dialect{
		Name:        "sqlite",
		Driver:      "sqlite",
		Placeholder: func(int) string { return "?" },
	}
	Postgres = Dialect{
		Name:        "postgres",
		Driver:      "pgx",
		Placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	}
)

var (
	registryMu sync.RWMutex
	registry   = map[string]Dialect{
		"sqlite":     SQLite,
		"file":       SQLite,
		"postgres":   Postgres,
		"postgresql": Postgres,
	}
)

// Register maps a DSN scheme to a dialect.
func Register(scheme string, d Dialect) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[scheme] = d
}

// Schemes returns the registered DSN schemes (sorted).
func Schemes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the dialect for dsn and the connection string to hand to
// its driver. A DSN without a scheme is a sqlite file path.
func Resolve(dsn string) (Dialect, string, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return Dialect{}, "", fmt.Errorf("empty database DSN")
	}

	scheme, rest, ok := strings.Cut(dsn, ":")
	if !ok || scheme == "" || strings.ContainsAny(scheme, `/\.`) || len(scheme) == 1 {
		// plain path, :memory: or a windows drive letter
		return SQLite, dsn, nil
	}

	registryMu.RLock()
	d, found := registry[strings.ToLower(scheme)]
	registryMu.RUnlock()
	if !found {
		return Dialect{}, "", &UnknownSchemeError{Scheme: scheme, Available: Schemes()}
	}

	if strings.EqualFold(scheme, "sqlite") {
		return d, strings.TrimPrefix(rest, "//"), nil
	}
	return d, dsn, nil
}

// UnknownSchemeError is returned for a DSN scheme without a dialect.
type UnknownSchemeError struct {
	Scheme    string
	Available []string
}

func (e *UnknownSchemeError) Error() string {
	return fmt.Sprintf("unknown database scheme %q (available: %s)", e.Scheme, strings.Join(e.Available, ", "))
}
