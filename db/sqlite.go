// Package db reads and writes whole tables for the SQL dataset source.
// sqlite3 and postgres drivers are registered.
package db

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Open 连接数据库并验证连接
func Open(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	database, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	return database, nil
}

// ReadTable returns every row of table keyed by column name. Text values are
// returned as string, never []byte.
func ReadTable(ctx context.Context, database *sqlx.DB, table string) ([]string, []map[string]any, error) {
	if err := checkIdentifier(table); err != nil {
		return nil, nil, err
	}
	rows, err := database.QueryxContext(ctx, fmt.Sprintf(`SELECT * FROM %s`, quote(table)))
	if err != nil {
		return nil, nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var records []map[string]any
	for rows.Next() {
		record := make(map[string]any, len(columns))
		if err := rows.MapScan(record); err != nil {
			return nil, nil, fmt.Errorf("scan %s: %w", table, err)
		}
		for key, value := range record {
			if b, ok := value.([]byte); ok {
				record[key] = string(b)
			}
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return columns, records, nil
}

// WriteTable creates table when it does not exist and inserts records in one
// transaction. Column types are inferred from the values of the first
// non-null cell in each column.
func WriteTable(ctx context.Context, database *sqlx.DB, table string, columns []string, records []map[string]any) (err error) {
	if err := checkIdentifier(table); err != nil {
		return err
	}
	if len(columns) == 0 {
		return errors.New("no columns to write")
	}
	defs := make([]string, len(columns))
	quoted := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, name := range columns {
		if err := checkIdentifier(name); err != nil {
			return err
		}
		quoted[i] = quote(name)
		defs[i] = quoted[i] + " " + columnType(name, records)
		marks[i] = "?"
	}

	tx, err := database.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s)`, quote(table), strings.Join(defs, ", "))
	if _, err = tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}

	insert := tx.Rebind(fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		quote(table), strings.Join(quoted, ", "), strings.Join(marks, ", ")))
	stmt, err := tx.PreparexContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(columns))
	for n, record := range records {
		for i, name := range columns {
			args[i] = record[name]
		}
		if _, err = stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row %d: %w", n+1, err)
		}
	}
	return tx.Commit()
}

// DropTable 删除表（如果存在）
func DropTable(ctx context.Context, database *sqlx.DB, table string) error {
	if err := checkIdentifier(table); err != nil {
		return err
	}
	if _, err := database.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, quote(table))); err != nil {
		return fmt.Errorf("drop table %s: %w", table, err)
	}
	return nil
}

func columnType(name string, records []map[string]any) string {
	sqlType := "TEXT"
	for _, record := range records {
		switch record[name].(type) {
		case nil:
			continue
		case bool:
			return "BOOLEAN"
		case int64, int:
			sqlType = "BIGINT"
			continue
		case float64:
			return "DOUBLE PRECISION"
		default:
			return "TEXT"
		}
	}
	return sqlType
}

func checkIdentifier(name string) error {
	if !identifierRe.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

func quote(name string) string {
	return `"` + name + `"`
}
