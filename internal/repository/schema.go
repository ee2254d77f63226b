package repository

// Schema definitions for the Ringscope report store.
// Compatible with both SQLite and PostgreSQL.

const schemaReports = `
CREATE TABLE IF NOT EXISTS reports (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    total_transactions INTEGER NOT NULL,
    total_accounts INTEGER NOT NULL,
    suspicious_accounts INTEGER NOT NULL,
    fraud_rings INTEGER NOT NULL,
    summary TEXT NOT NULL,
    body TEXT NOT NULL,
    PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS idx_reports_created ON reports(tenant_id, created_at);
`

// schemaReportGraphs holds graph exports, one per report.
const schemaReportGraphs = `
CREATE TABLE IF NOT EXISTS report_graphs (
    report_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    node_count INTEGER NOT NULL,
    edge_count INTEGER NOT NULL,
    truncated INTEGER NOT NULL DEFAULT 0,
    body TEXT NOT NULL,
    PRIMARY KEY (tenant_id, report_id)
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaReports,
		schemaReportGraphs,
	}
}
