package snapshot

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// PostgresStore keeps the snapshot in the known_users table. Users are only
// ever upserted, matching the append-only known set.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an open connection whose schema is migrated.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type knownUserRow struct {
	UserID      int64  `db:"user_id"`
	DisplayName string `db:"display_name"`
}

// Load reads every known user.
func (s *PostgresStore) Load(ctx context.Context) (Data, error) {
	var rows []knownUserRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT user_id, display_name FROM known_users ORDER BY user_id`); err != nil {
		return Data{Names: map[int64]string{}}, fmt.Errorf("select known users: %w", err)
	}
	data := Data{
		Known: make([]int64, 0, len(rows)),
		Names: make(map[int64]string, len(rows)),
	}
	for _, r := range rows {
		data.Known = append(data.Known, r.UserID)
		if r.DisplayName != "" {
			data.Names[r.UserID] = r.DisplayName
		}
	}
	return data, nil
}

// Save upserts the snapshot in one transaction.
func (s *PostgresStore) Save(ctx context.Context, data Data) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO known_users (user_id, display_name, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE
		SET display_name = CASE WHEN EXCLUDED.display_name = '' THEN known_users.display_name ELSE EXCLUDED.display_name END,
		    updated_at = now()`)
	if err != nil {
		return fmt.Errorf("prepare snapshot upsert: %w", err)
	}
	defer stmt.Close()

	written := make(map[int64]struct{}, len(data.Known))
	for _, id := range data.Known {
		if _, err = stmt.ExecContext(ctx, id, data.Names[id]); err != nil {
			return fmt.Errorf("upsert known user %d: %w", id, err)
		}
		written[id] = struct{}{}
	}
	for _, id := range sortedIDs(data.Names) {
		if _, ok := written[id]; ok {
			continue
		}
		if _, err = stmt.ExecContext(ctx, id, data.Names[id]); err != nil {
			return fmt.Errorf("upsert known user %d: %w", id, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot tx: %w", err)
	}
	return nil
}
