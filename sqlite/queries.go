package sqlite

import "fmt"

type queries struct {
	insert        string
	selectOne     string
	selectStatus  string
	selectDue     string
	countStatus   string
	lease         string
	update        string
	remove        string
	sweep         string
	cleanupStatus string
}

func newQueries(table string) queries {
	cols := "id, kind, payload, project_id, base_version, status, attempts, max_attempts, next_run_at, created_at, updated_at, last_error"

	return queries{
		insert: fmt.Sprintf(
			"INSERT INTO %s (id, kind, payload, project_id, base_version, status, attempts, max_attempts, next_run_at, created_at, updated_at, last_error)"+
				" VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?, '')",
			table,
		),
		selectOne: fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", cols, table),
		selectStatus: fmt.Sprintf(
			"SELECT %s FROM %s WHERE status = ? ORDER BY project_id ASC, created_at ASC, id ASC",
			cols,
			table,
		),
		// Only a project's head (its oldest queued or processing item) is
		// eligible; a backing-off or leased head hides its followers so
		// per-project delivery stays FIFO across cycles.
		selectDue: fmt.Sprintf(
			"SELECT %s FROM %s o WHERE o.status = ? AND o.next_run_at <= ?"+
				" AND NOT EXISTS (SELECT 1 FROM %s p WHERE p.project_id = o.project_id"+
				" AND p.status IN (?, ?)"+
				" AND (p.created_at < o.created_at OR (p.created_at = o.created_at AND p.id < o.id)))"+
				" ORDER BY o.project_id ASC, o.created_at ASC, o.id ASC",
			cols,
			table,
			table,
		),
		countStatus: fmt.Sprintf("SELECT status, COUNT(*) FROM %s GROUP BY status", table),
		lease: fmt.Sprintf(
			"UPDATE %s SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
			table,
		),
		update: fmt.Sprintf(
			"UPDATE %s SET status = ?, attempts = ?, next_run_at = ?, base_version = ?, last_error = ?, updated_at = ? WHERE id = ?",
			table,
		),
		remove: fmt.Sprintf("DELETE FROM %s WHERE id = ?", table),
		sweep: fmt.Sprintf(
			"UPDATE %s SET status = ?, next_run_at = ?, updated_at = ? WHERE status = ? AND updated_at < ?",
			table,
		),
		cleanupStatus: fmt.Sprintf(
			"DELETE FROM %s WHERE status = ? AND updated_at < ? AND id IN (SELECT id FROM %s WHERE status = ? AND updated_at < ? LIMIT ?)",
			table,
			table,
		),
	}
}
