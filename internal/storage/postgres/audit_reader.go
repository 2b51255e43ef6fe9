package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/vladislavdragonenkov/retailops/internal/domain"
)

type auditReader struct {
	db *sql.DB
}

// NewAuditReader создаёт PostgreSQL-реализацию AuditReader.
func NewAuditReader(store *Store) domain.AuditReader {
	return &auditReader{db: store.DB()}
}

func (r *auditReader) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditLog, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		conditions []string
		args       []any
	)
	if filter.Entity != "" {
		args = append(args, filter.Entity)
		conditions = append(conditions, "entity_name = $"+strconv.Itoa(len(args)))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		conditions = append(conditions, "action = $"+strconv.Itoa(len(args)))
	}

	query := `
		SELECT id, entity_name, entity_id, action, changes, occurred_at
		FROM audit_log`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY occurred_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := r.db.QueryContext(queryCtx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.AuditLog, 0)
	for rows.Next() {
		var (
			entry     domain.AuditLog
			actionRaw string
		)
		if err := rows.Scan(
			&entry.ID, &entry.EntityName, &entry.EntityID, &actionRaw, &entry.Changes, &entry.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.Action = domain.AuditAction(actionRaw)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

var _ domain.AuditReader = (*auditReader)(nil)
