package sqlstore

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/getpup/fieldmigrate"
)

// Dialect captures the SQL differences between the supported databases.
type Dialect struct {
	// Name is the adapter name used in configuration ("postgres", "mysql", "sqlite").
	Name string

	// DriverName is the database/sql driver name registered by the driver package.
	DriverName string

	placeholder func(n int) string
	createTable func(table string) string

	// merge overwrites the top-level fields of column with the JSON object in param.
	// Used when perField is false.
	merge func(column, param string) string

	// setFields overwrites n top-level fields of column, each from a JSON path
	// parameter followed by a JSON value parameter. Used when perField is true.
	setFields func(column string, n int) string
	perField  bool
}

// Postgres stores documents in a JSONB column and merges with the || operator.
// Requires the github.com/lib/pq driver.
var Postgres = Dialect{
	Name:       "postgres",
	DriverName: "postgres",
	placeholder: func(n int) string {
		return "$" + strconv.Itoa(n)
	},
	merge: func(column, param string) string {
		return fmt.Sprintf("%s || %s::jsonb", column, param)
	},
	createTable: func(table string) string {
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    collection TEXT NOT NULL,
    id TEXT NOT NULL,
    data JSONB NOT NULL DEFAULT '{}'::jsonb,
    PRIMARY KEY (collection, id)
);
`, table)
	},
}

// MySQL stores documents in a JSON column and sets each field with JSON_SET.
// Requires the github.com/go-sql-driver/mysql driver with clientFoundRows=true,
// otherwise rewriting a field to its current value reports zero affected rows.
var MySQL = Dialect{
	Name:        "mysql",
	DriverName:  "mysql",
	placeholder: func(int) string { return "?" },
	setFields: func(column string, n int) string {
		return fmt.Sprintf("JSON_SET(%s%s)", column, strings.Repeat(", ?, CAST(? AS JSON)", n))
	},
	perField: true,
	createTable: func(table string) string {
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    collection VARCHAR(255) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL,
    id VARCHAR(255) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL,
    data JSON NOT NULL,
    PRIMARY KEY (collection, id)
);
`, table)
	},
}

// SQLite stores documents as JSON text and sets each field with json_set.
// Requires the github.com/mattn/go-sqlite3 driver.
var SQLite = Dialect{
	Name:        "sqlite",
	DriverName:  "sqlite3",
	placeholder: func(int) string { return "?" },
	setFields: func(column string, n int) string {
		return fmt.Sprintf("json_set(%s%s)", column, strings.Repeat(", ?, json(?)", n))
	},
	perField: true,
	createTable: func(table string) string {
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    collection TEXT NOT NULL,
    id TEXT NOT NULL,
    data TEXT NOT NULL DEFAULT '{}' CHECK (json_valid(data)),
    PRIMARY KEY (collection, id)
);
`, table)
	},
}

// DialectFor returns the dialect for an adapter or driver name.
func DialectFor(name string) (Dialect, error) {
	switch name {
	case "postgres", "postgresql":
		return Postgres, nil
	case "mysql", "mariadb":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported sql dialect %q: supported dialects are postgres, mysql, sqlite", name)
	}
}

func (d Dialect) scanQuery(table string) string {
	return fmt.Sprintf(`
		SELECT id, data
		FROM %s
		WHERE collection = %s AND id > %s
		ORDER BY id
		LIMIT %s
	`, table, d.placeholder(1), d.placeholder(2), d.placeholder(3))
}

func (d Dialect) getQuery(table string) string {
	return fmt.Sprintf(`
		SELECT data
		FROM %s
		WHERE collection = %s AND id = %s
	`, table, d.placeholder(1), d.placeholder(2))
}

func (d Dialect) updateQuery(table string, fields int) string {
	if !d.perField {
		return fmt.Sprintf(`
		UPDATE %s
		SET data = %s
		WHERE collection = %s AND id = %s
	`, table, d.merge("data", d.placeholder(1)), d.placeholder(2), d.placeholder(3))
	}
	n := 2 * fields
	return fmt.Sprintf(`
		UPDATE %s
		SET data = %s
		WHERE collection = %s AND id = %s
	`, table, d.setFields("data", fields), d.placeholder(n+1), d.placeholder(n+2))
}

// updateArgs returns the arguments of updateQuery for one update.
// Each field replaces the existing top-level value as a whole.
func (d Dialect) updateArgs(collection string, u fieldmigrate.Update) ([]any, error) {
	if !d.perField {
		patch, err := json.Marshal(fieldmigrate.FieldMap(u.Fields))
		if err != nil {
			return nil, err
		}
		return []any{string(patch), collection, u.Ref}, nil
	}

	args := make([]any, 0, 2*len(u.Fields)+2)
	for _, f := range u.Fields {
		path, err := fieldPath(f.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		args = append(args, path, string(value))
	}
	return append(args, collection, u.Ref), nil
}

// fieldPath addresses a top-level member as a quoted JSON path label.
func fieldPath(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `"\`) {
		return "", fmt.Errorf("field name %q cannot be addressed in a JSON path", name)
	}
	return `$."` + name + `"`, nil
}

func (d Dialect) insertQuery(table string) string {
	return fmt.Sprintf(`
		INSERT INTO %s (collection, id, data)
		VALUES (%s, %s, %s)
	`, table, d.placeholder(1), d.placeholder(2), d.placeholder(3))
}
