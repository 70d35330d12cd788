package sqlite

import "fmt"

const schemaTemplate = `CREATE TABLE IF NOT EXISTS %s (
	id BLOB PRIMARY KEY,
	kind TEXT NOT NULL,
	payload TEXT NOT NULL,
	project_id TEXT NOT NULL,
	base_version INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'queued',
	attempts INTEGER NOT NULL DEFAULT 0,
	max_attempts INTEGER NOT NULL,
	next_run_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	last_error TEXT NOT NULL DEFAULT ''
);`

const (
	dueIndexTemplate     = `CREATE INDEX IF NOT EXISTS idx_%s_status_due ON %s (status, next_run_at);`
	projectIndexTemplate = `CREATE INDEX IF NOT EXISTS idx_%s_project ON %s (project_id, created_at);`
)

// Schema returns the statements creating the outbox table and its indexes.
func Schema(table string) ([]string, error) {
	table, err := sanitizeTableName(table)
	if err != nil {
		return nil, err
	}

	return []string{
		fmt.Sprintf(schemaTemplate, table),
		fmt.Sprintf(dueIndexTemplate, table, table),
		fmt.Sprintf(projectIndexTemplate, table, table),
	}, nil
}
