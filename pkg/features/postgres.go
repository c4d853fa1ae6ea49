package features

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/hed1ad/fraudguard/pkg/dataset"
)

var _ Engine = (*PostgresEngine)(nil)

const (
	scratchTable  = "transactions"
	ordinalColumn = "__ordinal"
)

// PostgresEngine evaluates aggregates as window-function SQL on a Postgres
// server. Rows are loaded into a session-scoped temporary table that is
// dropped when the call returns; nothing outlives a single Aggregate call.
type PostgresEngine struct {
	dsn string
}

// NewPostgresEngine creates an engine connecting with the given lib/pq DSN.
func NewPostgresEngine(dsn string) *PostgresEngine {
	return &PostgresEngine{dsn: dsn}
}

// Aggregate implements Engine.
func (e *PostgresEngine) Aggregate(ctx context.Context, t *dataset.Table, spec Spec) (_ *dataset.Table, err error) {
	if e.dsn == "" {
		return nil, errors.New("postgres engine: no database URL configured")
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if missing := t.Missing(spec.requiredColumns()...); len(missing) > 0 {
		return nil, &dataset.MissingColumnsError{Missing: missing}
	}

	query := BuildQuery(spec, t.Columns)

	db, err := sql.Open("postgres", e.dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	// Registered before the table exists so every later failure still
	// drops it.
	defer func() {
		_, dropErr := conn.ExecContext(context.WithoutCancel(ctx), "DROP TABLE IF EXISTS "+pq.QuoteIdentifier(scratchTable))
		if err == nil && dropErr != nil {
			err = fmt.Errorf("drop scratch table: %w", dropErr)
		}
	}()

	if _, err := conn.ExecContext(ctx, createTableSQL(t.Columns)); err != nil {
		return nil, fmt.Errorf("create scratch table: %w", err)
	}
	if err := copyRows(ctx, conn, t); err != nil {
		return nil, fmt.Errorf("load scratch table: %w", err)
	}

	out, err := queryTable(ctx, conn, query, append(append([]string(nil), t.Columns...), spec.Names()...))
	if err != nil {
		return nil, fmt.Errorf("execute aggregation query: %w", err)
	}
	if out.Len() != t.Len() {
		return nil, fmt.Errorf("aggregation query returned %d rows for %d inputs", out.Len(), t.Len())
	}
	return out, nil
}

func createTableSQL(columns []string) string {
	defs := make([]string, 0, len(columns)+1)
	defs = append(defs, pq.QuoteIdentifier(ordinalColumn)+" bigint NOT NULL")
	for _, c := range columns {
		defs = append(defs, pq.QuoteIdentifier(c)+" double precision NOT NULL")
	}
	return fmt.Sprintf("CREATE TEMP TABLE %s (%s)", pq.QuoteIdentifier(scratchTable), strings.Join(defs, ", "))
}

func copyRows(ctx context.Context, conn *sql.Conn, t *dataset.Table) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	cols := append([]string{ordinalColumn}, t.Columns...)
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(scratchTable, cols...))
	if err != nil {
		return err
	}

	args := make([]any, len(cols))
	for i, row := range t.Rows {
		args[0] = int64(i)
		for j, v := range row {
			args[j+1] = v
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			stmt.Close()
			return err
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return err
	}
	if err := stmt.Close(); err != nil {
		return err
	}
	return tx.Commit()
}

func queryTable(ctx context.Context, conn *sql.Conn, query string, columns []string) (*dataset.Table, error) {
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scanned := make([]sql.NullFloat64, len(columns))
	dest := make([]any, len(columns))
	for i := range scanned {
		dest[i] = &scanned[i]
	}

	out := [][]float64{}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		row := make([]float64, len(columns))
		for i, v := range scanned {
			if v.Valid {
				row[i] = v.Float64
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return dataset.New(columns, out)
}

// BuildQuery renders spec as a window-function query over the scratch
// table. Output columns are the given input columns followed by the
// aggregates, in input row order.
func BuildQuery(spec Spec, columns []string) string {
	q := pq.QuoteIdentifier

	selects := make([]string, 0, len(columns)+len(spec.Aggregates))
	for _, c := range columns {
		selects = append(selects, "t."+q(c))
	}

	partition := fmt.Sprintf("PARTITION BY t.%s ORDER BY t.%s, t.%s",
		q(spec.UserColumn), q(spec.TimeColumn), q(spec.OrderColumn))

	for _, a := range spec.Aggregates {
		frame := "ROWS BETWEEN UNBOUNDED PRECEDING AND 1 PRECEDING"
		if a.Window > 0 {
			frame = fmt.Sprintf("ROWS BETWEEN %d PRECEDING AND 1 PRECEDING", a.Window)
		}
		over := fmt.Sprintf("OVER (%s %s)", partition, frame)

		var expr string
		switch a.Op {
		case OpCount:
			expr = fmt.Sprintf("COUNT(*) %s", over)
		case OpSum:
			expr = fmt.Sprintf("SUM(t.%s) %s", q(a.Column), over)
		case OpMean:
			expr = fmt.Sprintf("AVG(t.%s) %s", q(a.Column), over)
		case OpMin:
			expr = fmt.Sprintf("MIN(t.%s) %s", q(a.Column), over)
		case OpMax:
			expr = fmt.Sprintf("MAX(t.%s) %s", q(a.Column), over)
		case OpStd:
			expr = fmt.Sprintf("STDDEV_SAMP(t.%s) %s", q(a.Column), over)
		case OpDelta:
			expr = fmt.Sprintf("t.%s - LAG(t.%s) OVER (%s)", q(a.Column), q(a.Column), partition)
		}
		selects = append(selects, fmt.Sprintf("COALESCE((%s)::double precision, 0) AS %s", expr, q(a.Name)))
	}

	return fmt.Sprintf("SELECT %s FROM %s t ORDER BY t.%s",
		strings.Join(selects, ", "), q(scratchTable), q(ordinalColumn))
}
