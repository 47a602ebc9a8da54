// Package postgres introspects a live database through pg_catalog and
// information_schema and emits dump-shaped DDL, so live conversions flow
// through the same pipeline as file conversions.
package postgres

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strings"

	_ "github.com/lib/pq"

	"github.com/pg2dbml/pg2dbml/database"
)

type PostgresSource struct {
	config database.Config
	db     *sql.DB
}

func NewSource(config database.Config) (*PostgresSource, error) {
	db, err := sql.Open("postgres", buildDSN(config))
	if err != nil {
		return nil, err
	}
	return &PostgresSource{config: config, db: db}, nil
}

func (d *PostgresSource) Close() error {
	return d.db.Close()
}

// DumpSchema renders enums, sequences, tables, constraints, and indexes as
// the DDL statements pg_dump would write, joined by blank lines.
func (d *PostgresSource) DumpSchema() (string, error) {
	var ddls []string

	enumDDLs, err := d.enums()
	if err != nil {
		return "", err
	}
	ddls = append(ddls, enumDDLs...)

	sequenceDDLs, err := d.sequences()
	if err != nil {
		return "", err
	}
	ddls = append(ddls, sequenceDDLs...)

	tables, err := d.tableNames()
	if err != nil {
		return "", err
	}
	for _, table := range tables {
		ddl, err := d.tableDDL(table)
		if err != nil {
			return "", err
		}
		ddls = append(ddls, ddl)

		constraintDDLs, err := d.constraints(table)
		if err != nil {
			return "", err
		}
		ddls = append(ddls, constraintDDLs...)

		indexDDLs, err := d.indexes(table)
		if err != nil {
			return "", err
		}
		ddls = append(ddls, indexDDLs...)
	}

	return strings.Join(ddls, "\n\n"), nil
}

func (d *PostgresSource) tableNames() ([]string, error) {
	rows, err := d.db.Query(`
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
		ORDER BY table_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (d *PostgresSource) tableDDL(table string) (string, error) {
	rows, err := d.db.Query(`
		SELECT column_name, udt_name, is_nullable, column_default,
		       character_maximum_length, numeric_precision, numeric_scale
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position`, table)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name, udtName, nullable string
		var columnDefault sql.NullString
		var maxLength, precision, scale sql.NullInt64
		if err := rows.Scan(&name, &udtName, &nullable, &columnDefault, &maxLength, &precision, &scale); err != nil {
			return "", err
		}

		col := fmt.Sprintf("    %s %s", name, formatColumnType(udtName, maxLength, precision, scale))
		if columnDefault.Valid {
			col += " DEFAULT " + columnDefault.String
		}
		if nullable == "NO" {
			col += " NOT NULL"
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("CREATE TABLE %s (\n%s\n);", table, strings.Join(cols, ",\n")), nil
}

// formatColumnType rebuilds the declared type from catalog columns. An
// underscore prefix on udt_name marks an array of the remaining type.
func formatColumnType(udtName string, maxLength, precision, scale sql.NullInt64) string {
	if strings.HasPrefix(udtName, "_") {
		return formatColumnType(strings.TrimPrefix(udtName, "_"), maxLength, precision, scale) + "[]"
	}
	switch udtName {
	case "varchar", "bpchar":
		if maxLength.Valid {
			return fmt.Sprintf("%s(%d)", udtName, maxLength.Int64)
		}
	case "numeric":
		if precision.Valid && scale.Valid {
			return fmt.Sprintf("numeric(%d,%d)", precision.Int64, scale.Int64)
		}
	}
	return udtName
}

func (d *PostgresSource) constraints(table string) ([]string, error) {
	rows, err := d.db.Query(`
		SELECT con.conname, pg_get_constraintdef(con.oid)
		FROM pg_constraint con
		JOIN pg_class rel ON rel.oid = con.conrelid
		JOIN pg_namespace nsp ON nsp.oid = rel.relnamespace
		WHERE nsp.nspname = 'public' AND rel.relname = $1
		ORDER BY con.conname`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ddls []string
	for rows.Next() {
		var name, def string
		if err := rows.Scan(&name, &def); err != nil {
			return nil, err
		}
		ddls = append(ddls, fmt.Sprintf("ALTER TABLE ONLY %s\n    ADD CONSTRAINT %s %s;", table, name, def))
	}
	return ddls, rows.Err()
}

func (d *PostgresSource) indexes(table string) ([]string, error) {
	rows, err := d.db.Query(`
		SELECT indexdef FROM pg_indexes
		WHERE schemaname = 'public' AND tablename = $1
		  AND indexname NOT IN (
		    SELECT conname FROM pg_constraint con
		    JOIN pg_class rel ON rel.oid = con.conrelid
		    JOIN pg_namespace nsp ON nsp.oid = rel.relnamespace
		    WHERE nsp.nspname = 'public' AND rel.relname = $1)
		ORDER BY indexname`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ddls []string
	for rows.Next() {
		var def string
		if err := rows.Scan(&def); err != nil {
			return nil, err
		}
		ddls = append(ddls, def+";")
	}
	return ddls, rows.Err()
}

func (d *PostgresSource) enums() ([]string, error) {
	rows, err := d.db.Query(`
		SELECT t.typname, e.enumlabel
		FROM pg_type t
		JOIN pg_enum e ON e.enumtypid = t.oid
		JOIN pg_namespace n ON n.oid = t.typnamespace
		WHERE n.nspname = 'public'
		ORDER BY t.typname, e.enumsortorder`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := map[string][]string{}
	var order []string
	for rows.Next() {
		var name, label string
		if err := rows.Scan(&name, &label); err != nil {
			return nil, err
		}
		if _, seen := values[name]; !seen {
			order = append(order, name)
		}
		values[name] = append(values[name], fmt.Sprintf("'%s'", strings.ReplaceAll(label, "'", "''")))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var ddls []string
	for _, name := range order {
		ddls = append(ddls, fmt.Sprintf("CREATE TYPE %s AS ENUM (%s);", name, strings.Join(values[name], ", ")))
	}
	return ddls, nil
}

func (d *PostgresSource) sequences() ([]string, error) {
	rows, err := d.db.Query(`
		SELECT sequence_name FROM information_schema.sequences
		WHERE sequence_schema = 'public'
		ORDER BY sequence_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ddls []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		ddls = append(ddls, fmt.Sprintf("CREATE SEQUENCE %s;", name))
	}
	return ddls, rows.Err()
}

func buildDSN(config database.Config) string {
	user := config.User
	password := config.Password
	dbName := config.DbName
	host := ""
	var options []string

	if config.Socket == "" {
		host = fmt.Sprintf("%s:%d", config.Host, config.Port)
	} else {
		// A unix socket path would be rejected by the URL parser in host
		// position, so it goes into the query string instead.
		options = append(options, fmt.Sprintf("host=%s", config.Socket))
	}

	if config.SslMode != "" {
		options = append(options, fmt.Sprintf("sslmode=%s", config.SslMode))
	} else if sslmode, ok := os.LookupEnv("PGSSLMODE"); ok {
		options = append(options, fmt.Sprintf("sslmode=%s", sslmode))
	}

	// QueryEscape instead of PathEscape so that colon can be escaped.
	return fmt.Sprintf("postgres://%s:%s@%s/%s?%s",
		url.QueryEscape(user), url.QueryEscape(password), host, dbName, strings.Join(options, "&"))
}
