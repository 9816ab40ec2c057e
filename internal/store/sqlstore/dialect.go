package sqlstore

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	sqlite3 "github.com/ncruces/go-sqlite3"
	"github.com/tetratelabs/wazero"
)

// dialect captures the few places SQLite and PostgreSQL differ.
type dialect struct {
	name string
	// driverName is the database/sql driver to open.
	driverName string
	// numbered placeholders ($1, $2) instead of '?'.
	numbered bool
	// lockClause is appended to a SELECT that starts a read-modify-write.
	lockClause string
}

var (
	sqliteDialect   = dialect{name: "sqlite", driverName: "sqlite3"}
	postgresDialect = dialect{name: "postgres", driverName: "postgres", numbered: true, lockClause: " FOR UPDATE"}
)

// rebind rewrites '?' placeholders for dialects that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// sqliteConnString turns a path into a file URI with the pragmas we rely on.
// ":memory:" gets a private named in-memory database.
func sqliteConnString(path, memName string) (string, bool, error) {
	const pragmas = "_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)"
	switch {
	case path == ":memory:":
		return "file:" + memName + "?mode=memory&cache=shared&" + pragmas, true, nil
	case strings.HasPrefix(path, "file:"):
		inMemory := strings.Contains(path, "mode=memory")
		if strings.Contains(path, "_pragma=") {
			return path, inMemory, nil
		}
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + pragmas, inMemory, nil
	default:
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return "", false, err
		}
		return "file:" + path + "?" + pragmas, false, nil
	}
}

// setupWASMCache points the SQLite WASM runtime at an on-disk compilation
// cache so only the first process start pays for compiling the module.
func setupWASMCache() {
	var cache wazero.CompilationCache
	if dir, err := os.UserCacheDir(); err == nil {
		if c, err := wazero.NewCompilationCacheWithDir(filepath.Join(dir, "cssaudit", "wasm")); err == nil {
			cache = c
		}
	}
	if cache == nil {
		cache = wazero.NewCompilationCache()
	}
	sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(cache)
}

func init() {
	setupWASMCache()
}
