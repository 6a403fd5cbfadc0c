package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// dedupSQL holds the dialect-specific statements of the inbound_dedup table.
type dedupSQL struct {
	exists string
	insert string
	mark   string
	prune  string
}

var (
	sqliteDedupSQL = dedupSQL{
		exists: `SELECT 1 FROM inbound_dedup WHERE message_id = ?`,
		insert: `INSERT OR IGNORE INTO inbound_dedup (message_id, sender_id, received_at) VALUES (?, ?, ?)`,
		mark:   `UPDATE inbound_dedup SET processed_at = ? WHERE message_id = ?`,
		prune:  `DELETE FROM inbound_dedup WHERE processed_at IS NOT NULL AND received_at < ?`,
	}
	postgresDedupSQL = dedupSQL{
		exists: `SELECT 1 FROM inbound_dedup WHERE message_id = $1`,
		insert: `INSERT INTO inbound_dedup (message_id, sender_id, received_at) VALUES ($1, $2, $3) ON CONFLICT (message_id) DO NOTHING`,
		mark:   `UPDATE inbound_dedup SET processed_at = $1 WHERE message_id = $2`,
		prune:  `DELETE FROM inbound_dedup WHERE processed_at IS NOT NULL AND received_at < $1`,
	}
)

// sqlDedup implements DedupRepo for both SQL stores.
type sqlDedup struct {
	db *sql.DB
	q  dedupSQL
}

func (d sqlDedup) IsDuplicate(ctx context.Context, messageID string) (bool, error) {
	var one int
	err := d.db.QueryRowContext(ctx, d.q.exists, messageID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup lookup %s: %w", messageID, err)
	}
	return true, nil
}

func (d sqlDedup) RecordInbound(ctx context.Context, messageID, senderID string) (bool, error) {
	res, err := d.db.ExecContext(ctx, d.q.insert, messageID, senderID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("record inbound %s: %w", messageID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record inbound %s: rows affected: %w", messageID, err)
	}
	return n > 0, nil
}

func (d sqlDedup) MarkProcessed(ctx context.Context, messageID string) error {
	if _, err := d.db.ExecContext(ctx, d.q.mark, time.Now().UTC(), messageID); err != nil {
		return fmt.Errorf("mark processed %s: %w", messageID, err)
	}
	return nil
}

func (d sqlDedup) PruneDedup(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := d.db.ExecContext(ctx, d.q.prune, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune dedup records: %w", err)
	}
	return res.RowsAffected()
}

var (
	_ DedupRepo = (*SQLiteStore)(nil)
	_ DedupRepo = (*PostgresStore)(nil)
)

func (s *SQLiteStore) IsDuplicate(ctx context.Context, messageID string) (bool, error) {
	return sqlDedup{s.db, sqliteDedupSQL}.IsDuplicate(ctx, messageID)
}

func (s *SQLiteStore) RecordInbound(ctx context.Context, messageID, senderID string) (bool, error) {
	return sqlDedup{s.db, sqliteDedupSQL}.RecordInbound(ctx, messageID, senderID)
}

func (s *SQLiteStore) MarkProcessed(ctx context.Context, messageID string) error {
	return sqlDedup{s.db, sqliteDedupSQL}.MarkProcessed(ctx, messageID)
}

func (s *SQLiteStore) PruneDedup(ctx context.Context, cutoff time.Time) (int64, error) {
	return sqlDedup{s.db, sqliteDedupSQL}.PruneDedup(ctx, cutoff)
}

func (s *PostgresStore) IsDuplicate(ctx context.Context, messageID string) (bool, error) {
	return sqlDedup{s.db, postgresDedupSQL}.IsDuplicate(ctx, messageID)
}

func (s *PostgresStore) RecordInbound(ctx context.Context, messageID, senderID string) (bool, error) {
	return sqlDedup{s.db, postgresDedupSQL}.RecordInbound(ctx, messageID, senderID)
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, messageID string) error {
	return sqlDedup{s.db, postgresDedupSQL}.MarkProcessed(ctx, messageID)
}

func (s *PostgresStore) PruneDedup(ctx context.Context, cutoff time.Time) (int64, error) {
	return sqlDedup{s.db, postgresDedupSQL}.PruneDedup(ctx, cutoff)
}
