// Package repository provides report persistence on SQLite and PostgreSQL.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/opensource-finance/ringscope/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// DefaultListLimit caps ListReports when no limit is given.
const DefaultListLimit = 20

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveReport stores a report. Saving the same report ID again replaces it.
func (r *SQLRepository) SaveReport(ctx context.Context, tenantID string, report *domain.Report) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if report == nil || report.ID == "" {
		return fmt.Errorf("%w: report ID is required", ErrInvalidInput)
	}

	summary, err := json.Marshal(report.Summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	query := `
		INSERT INTO reports (
			id, tenant_id, created_at, total_transactions, total_accounts,
			suspicious_accounts, fraud_rings, summary, body
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			created_at = excluded.created_at,
			total_transactions = excluded.total_transactions,
			total_accounts = excluded.total_accounts,
			suspicious_accounts = excluded.suspicious_accounts,
			fraud_rings = excluded.fraud_rings,
			summary = excluded.summary,
			body = excluded.body
	`

	s := report.Summary
	_, err = r.db.ExecContext(ctx, r.rebind(query),
		report.ID, tenantID, report.CreatedAt.UTC(),
		s.TotalTransactions, s.TotalAccountsAnalyzed,
		s.SuspiciousAccountsFlagged, s.FraudRingsDetected,
		string(summary), string(body),
	)
	return err
}

// GetReport retrieves a report by ID with tenant isolation.
func (r *SQLRepository) GetReport(ctx context.Context, tenantID string, reportID string) (*domain.Report, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT body FROM reports WHERE tenant_id = ? AND id = ?`

	var body string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, reportID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var report domain.Report
	if err := json.Unmarshal([]byte(body), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report %s: %w", reportID, err)
	}
	report.TenantID = tenantID
	return &report, nil
}

// ListReports returns the newest reports of a tenant first.
func (r *SQLRepository) ListReports(ctx context.Context, tenantID string, limit int) ([]*domain.ReportSummary, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
		SELECT id, tenant_id, created_at, summary
		FROM reports
		WHERE tenant_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*domain.ReportSummary
	for rows.Next() {
		var rs domain.ReportSummary
		var summary string

		if err := rows.Scan(&rs.ID, &rs.TenantID, &rs.CreatedAt, &summary); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(summary), &rs.Summary); err != nil {
			return nil, fmt.Errorf("failed to parse summary for %s: %w", rs.ID, err)
		}
		rs.CreatedAt = rs.CreatedAt.UTC()
		reports = append(reports, &rs)
	}

	return reports, rows.Err()
}

// SaveGraph stores the graph export of a report.
func (r *SQLRepository) SaveGraph(ctx context.Context, tenantID string, export *domain.GraphExport) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if export == nil || export.ReportID == "" {
		return fmt.Errorf("%w: report ID is required", ErrInvalidInput)
	}

	body, err := json.Marshal(export)
	if err != nil {
		return fmt.Errorf("failed to encode graph: %w", err)
	}

	truncated := 0
	if export.Truncated {
		truncated = 1
	}

	query := `
		INSERT INTO report_graphs (
			report_id, tenant_id, node_count, edge_count, truncated, body
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, report_id) DO UPDATE SET
			node_count = excluded.node_count,
			edge_count = excluded.edge_count,
			truncated = excluded.truncated,
			body = excluded.body
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		export.ReportID, tenantID, len(export.Nodes), len(export.Edges), truncated, string(body),
	)
	return err
}

// GetGraph retrieves the graph export of a report with tenant isolation.
func (r *SQLRepository) GetGraph(ctx context.Context, tenantID string, reportID string) (*domain.GraphExport, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT body FROM report_graphs WHERE tenant_id = ? AND report_id = ?`

	var body string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, reportID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var export domain.GraphExport
	if err := json.Unmarshal([]byte(body), &export); err != nil {
		return nil, fmt.Errorf("failed to parse graph for %s: %w", reportID, err)
	}
	return &export, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
