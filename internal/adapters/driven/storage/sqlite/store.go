package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/datascanner/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
)

// Store is a SQLite database holding document reports and aliases.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.datascanner/data/reports.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".datascanner", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "reports.db")

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// ReportStore returns a ReportStore interface backed by this store.
func (s *Store) ReportStore() driven.ReportStore {
	return &reportStore{store: s}
}

// migrate runs all pending up migrations, recording each version.
func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if name := entry.Name(); strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_reports.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}

	return nil
}

// ==================== Report Store ====================

// reportStore implements driven.ReportStore.
type reportStore struct {
	store *Store
}

var _ driven.ReportStore = (*reportStore)(nil)

const reportColumns = `id, scanner_job_pk, path, scan_time, raw_scan_tag, scanner_name,
	only_notify_superadmin, organisation, source_type, name, sort_key, sensitivity,
	probability, raw_matches, raw_problem, raw_metadata, datasource_last_modified,
	owner, resolution_status, resolution_time`

// GetReport retrieves the report for (scannerPK, path).
func (s *reportStore) GetReport(ctx context.Context, scannerPK int, path string) (*domain.DocumentReport, error) {
	row := s.store.db.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM document_reports WHERE scanner_job_pk = ? AND path = ?`,
		scannerPK, path)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return r, err
}

// SaveReport inserts or replaces the report for (ScannerJobPK, Path). An
// existing row keeps its ID so that alias links survive.
func (s *reportStore) SaveReport(ctx context.Context, r *domain.DocumentReport) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM document_reports WHERE scanner_job_pk = ? AND path = ?`,
		r.ScannerJobPK, r.Path).Scan(&existing)
	switch {
	case err == nil:
		r.ID = existing
	case errors.Is(err, sql.ErrNoRows):
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
	default:
		return fmt.Errorf("looking up report: %w", err)
	}

	var status sql.NullInt64
	if r.ResolutionStatus != nil {
		status = sql.NullInt64{Int64: int64(*r.ResolutionStatus), Valid: true}
	}
	var sensitivity sql.NullInt64
	if r.Sensitivity != nil {
		sensitivity = sql.NullInt64{Int64: int64(*r.Sensitivity), Valid: true}
	}
	var probability sql.NullFloat64
	if r.Probability != nil {
		probability = sql.NullFloat64{Float64: *r.Probability, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO document_reports (`+reportColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			scan_time = excluded.scan_time,
			raw_scan_tag = excluded.raw_scan_tag,
			scanner_name = excluded.scanner_name,
			only_notify_superadmin = excluded.only_notify_superadmin,
			organisation = excluded.organisation,
			source_type = excluded.source_type,
			name = excluded.name,
			sort_key = excluded.sort_key,
			sensitivity = excluded.sensitivity,
			probability = excluded.probability,
			raw_matches = excluded.raw_matches,
			raw_problem = excluded.raw_problem,
			raw_metadata = excluded.raw_metadata,
			datasource_last_modified = excluded.datasource_last_modified,
			owner = excluded.owner,
			resolution_status = excluded.resolution_status,
			resolution_time = excluded.resolution_time
	`, r.ID, r.ScannerJobPK, r.Path, nullTime(&r.ScanTime), nullJSON(r.RawScanTag), r.ScannerName,
		r.OnlyNotifySuperadmin, r.Organisation, r.SourceType, r.Name, r.SortKey, sensitivity,
		probability, nullJSON(r.RawMatches), nullJSON(r.RawProblem), nullJSON(r.RawMetadata),
		nullTime(r.DatasourceLastModified), r.Owner, status, nullTime(r.ResolutionTime))
	if err != nil {
		return fmt.Errorf("saving report: %w", err)
	}
	return tx.Commit()
}

// ListReports returns every report of a scanner ordered by scan time.
func (s *reportStore) ListReports(ctx context.Context, scannerPK int) ([]*domain.DocumentReport, error) {
	rows, err := s.store.db.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM document_reports WHERE scanner_job_pk = ? ORDER BY scan_time, path`,
		scannerPK)
	if err != nil {
		return nil, fmt.Errorf("querying reports: %w", err)
	}
	defer rows.Close()

	var reports []*domain.DocumentReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// SaveAlias inserts or updates an alias. An alias with the same type and
// value is reused.
func (s *reportStore) SaveAlias(ctx context.Context, a *domain.Alias) error {
	if a.ID == "" {
		err := s.store.db.QueryRowContext(ctx,
			`SELECT id FROM aliases WHERE type = ? AND value = ?`, string(a.Type), a.Value).Scan(&a.ID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("looking up alias: %w", err)
		}
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
	}
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO aliases (id, type, value) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET type = excluded.type, value = excluded.value
	`, a.ID, string(a.Type), a.Value)
	if err != nil {
		return fmt.Errorf("saving alias: %w", err)
	}
	return nil
}

// FindAliases returns aliases of aliasType matching value.
func (s *reportStore) FindAliases(ctx context.Context, aliasType domain.AliasType, value string) ([]domain.Alias, error) {
	query := `SELECT id, type, value FROM aliases WHERE type = ? AND value = ? ORDER BY id`
	if aliasType == domain.AliasEmail {
		query = `SELECT id, type, value FROM aliases WHERE type = ? AND lower(value) = lower(?) ORDER BY id`
	}
	return s.queryAliases(ctx, query, string(aliasType), value)
}

// LinkAlias relates a report to an alias.
func (s *reportStore) LinkAlias(ctx context.Context, reportID, aliasID string) error {
	_, err := s.store.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO report_aliases (report_id, alias_id) VALUES (?, ?)`, reportID, aliasID)
	if err != nil {
		return fmt.Errorf("linking alias: %w", err)
	}
	return nil
}

// ReportAliases returns the aliases linked to a report.
func (s *reportStore) ReportAliases(ctx context.Context, reportID string) ([]domain.Alias, error) {
	return s.queryAliases(ctx, `
		SELECT a.id, a.type, a.value FROM aliases a
		JOIN report_aliases ra ON ra.alias_id = a.id
		WHERE ra.report_id = ? ORDER BY a.id
	`, reportID)
}

func (s *reportStore) queryAliases(ctx context.Context, query string, args ...any) ([]domain.Alias, error) {
	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying aliases: %w", err)
	}
	defer rows.Close()

	var aliases []domain.Alias
	for rows.Next() {
		var a domain.Alias
		var t string
		if err := rows.Scan(&a.ID, &t, &a.Value); err != nil {
			return nil, fmt.Errorf("scanning alias: %w", err)
		}
		a.Type = domain.AliasType(t)
		aliases = append(aliases, a)
	}
	return aliases, rows.Err()
}

// ==================== Helpers ====================

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(row scanner) (*domain.DocumentReport, error) {
	var r domain.DocumentReport
	var scanTime, lastModified, resolutionTime sql.NullTime
	var scanTag, matches, problem, metadata sql.NullString
	var sensitivity, status sql.NullInt64
	var probability sql.NullFloat64

	err := row.Scan(&r.ID, &r.ScannerJobPK, &r.Path, &scanTime, &scanTag, &r.ScannerName,
		&r.OnlyNotifySuperadmin, &r.Organisation, &r.SourceType, &r.Name, &r.SortKey, &sensitivity,
		&probability, &matches, &problem, &metadata, &lastModified,
		&r.Owner, &status, &resolutionTime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning report: %w", err)
	}

	if scanTime.Valid {
		r.ScanTime = scanTime.Time
	}
	r.RawScanTag = rawJSON(scanTag)
	r.RawMatches = rawJSON(matches)
	r.RawProblem = rawJSON(problem)
	r.RawMetadata = rawJSON(metadata)
	if sensitivity.Valid {
		v := int(sensitivity.Int64)
		r.Sensitivity = &v
	}
	if probability.Valid {
		v := probability.Float64
		r.Probability = &v
	}
	if lastModified.Valid {
		t := lastModified.Time
		r.DatasourceLastModified = &t
	}
	if status.Valid {
		v := domain.ResolutionStatus(status.Int64)
		r.ResolutionStatus = &v
	}
	if resolutionTime.Valid {
		t := resolutionTime.Time
		r.ResolutionTime = &t
	}
	return &r, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 || string(raw) == "null" {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func rawJSON(s sql.NullString) json.RawMessage {
	if !s.Valid {
		return nil
	}
	return json.RawMessage(s.String)
}
