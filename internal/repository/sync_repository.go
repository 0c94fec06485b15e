package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-enrollment-sync/internal/models"
)

// Table describes a replicated table for last-write-wins merging.
type Table struct {
	Name          string
	VersionColumn string
	Columns       []string
}

// Replicated tables in merge order: tombstones always merge before data.
var (
	CourseTombstonesTable = Table{
		Name:          TableDeletedCourses,
		VersionColumn: "deleted_at",
		Columns:       []string{"id", "deleted_at"},
	}
	EnrollmentTombstonesTable = Table{
		Name:          TableDeletedEnrollments,
		VersionColumn: "deleted_at",
		Columns:       []string{"id", "deleted_at"},
	}
	CoursesTable = Table{
		Name:          TableCourses,
		VersionColumn: "last_modified",
		Columns:       []string{"id", "name", "capacity", "is_deleted", "last_modified"},
	}
	EnrollmentsTable = Table{
		Name:          TableEnrollments,
		VersionColumn: "last_modified",
		Columns:       []string{"id", "course_id", "student_name", "enrolled_at", "status", "last_modified"},
	}
)

// MergeOrder lists the replicated tables in the order healing visits them.
func MergeOrder() []Table {
	return []Table{CourseTombstonesTable, EnrollmentTombstonesTable, CoursesTable, EnrollmentsTable}
}

// Row is one replicated row keyed by column name.
type Row map[string]interface{}

// ID returns the row id.
func (r Row) ID() string {
	id, _ := r["id"].(string)
	return id
}

const upsertChunkSize = 100

// SyncRepository reads and writes whole rows of replicated tables.
type SyncRepository struct {
	db sqlx.ExtContext
}

// NewSyncRepository constructs the repository.
func NewSyncRepository(db sqlx.ExtContext) *SyncRepository {
	return &SyncRepository{db: db}
}

// Versions returns id -> version (last_modified or deleted_at) for a table.
func (r *SyncRepository) Versions(ctx context.Context, t Table) (map[string]time.Time, error) {
	query := fmt.Sprintf(`SELECT id, %s AS version FROM %s`, t.VersionColumn, t.Name)
	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("versions of %s: %w", t.Name, err)
	}
	defer rows.Close()

	versions := make(map[string]time.Time)
	for rows.Next() {
		var (
			id      string
			version time.Time
		)
		if err := rows.Scan(&id, &version); err != nil {
			return nil, fmt.Errorf("scan %s version: %w", t.Name, err)
		}
		versions[id] = models.NormalizeTime(version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s versions: %w", t.Name, err)
	}
	return versions, nil
}

// FetchRows returns the full rows of the given ids.
func (r *SyncRepository) FetchRows(ctx context.Context, t Table, ids []string) ([]Row, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ANY($1::uuid[])`, strings.Join(t.Columns, ", "), t.Name)
	rows, err := r.db.QueryxContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("fetch %s rows: %w", t.Name, err)
	}
	defer rows.Close()

	var result []Row
	for rows.Next() {
		raw := make(map[string]interface{}, len(t.Columns))
		if err := rows.MapScan(raw); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", t.Name, err)
		}
		result = append(result, normalizeRow(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s rows: %w", t.Name, err)
	}
	return result, nil
}

// UpsertRows writes rows with insert-or-update-only-if-newer semantics and
// returns how many rows were actually written.
func (r *SyncRepository) UpsertRows(ctx context.Context, t Table, rows []Row) (int64, error) {
	var written int64
	for start := 0; start < len(rows); start += upsertChunkSize {
		end := start + upsertChunkSize
		if end > len(rows) {
			end = len(rows)
		}
		query, args := upsertStatement(t, rows[start:end])
		res, err := r.db.ExecContext(ctx, query, args...)
		if err != nil {
			return written, fmt.Errorf("upsert %s rows: %w", t.Name, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			written += n
		}
	}
	return written, nil
}

func upsertStatement(t Table, rows []Row) (string, []interface{}) {
	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*len(t.Columns))
	for _, row := range rows {
		placeholders := make([]string, len(t.Columns))
		for i, col := range t.Columns {
			args = append(args, row[col])
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		values = append(values, "("+strings.Join(placeholders, ", ")+")")
	}

	updates := make([]string, 0, len(t.Columns)-1)
	for _, col := range t.Columns {
		if col == "id" {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}

	query := fmt.Sprintf(`INSERT INTO %[1]s (%[2]s) VALUES %[3]s
        ON CONFLICT (id) DO UPDATE SET %[4]s
        WHERE %[1]s.%[5]s < EXCLUDED.%[5]s`,
		t.Name,
		strings.Join(t.Columns, ", "),
		strings.Join(values, ", "),
		strings.Join(updates, ", "),
		t.VersionColumn,
	)
	return query, args
}

func normalizeRow(raw map[string]interface{}) Row {
	row := make(Row, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case []byte:
			row[k] = string(val)
		case time.Time:
			row[k] = models.NormalizeTime(val)
		default:
			row[k] = val
		}
	}
	return row
}
