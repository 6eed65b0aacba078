package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tallybot/tallybot/internal/models"
	"github.com/tallybot/tallybot/internal/money"
	"github.com/tallybot/tallybot/internal/storage"
)

// AppendBatch atomically creates a payment group, its obligations and
// the links between them. The group ID comes from INSERT ... RETURNING
// inside the transaction, so no step depends on ordering guarantees
// outside it.
func (s *PostgresStore) AppendBatch(ctx context.Context, c models.Context, groupName string, records []models.PayRecord) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().Unix()

	var groupID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO payment_groups (chat_id, thread_id, name, created_at)
		 VALUES ($1, $2, $3, $4) RETURNING group_id`,
		c.ChatID, c.ThreadID, groupName, now,
	).Scan(&groupID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert group: %w", err)
	}

	for _, r := range records {
		var recordID int64
		err = tx.QueryRow(ctx,
			`INSERT INTO pay_records (chat_id, thread_id, from_user_id, to_user_id, currency, value_cents, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING pay_record_id`,
			c.ChatID, c.ThreadID, r.FromUserID, r.ToUserID, r.Currency, int64(r.Value), now,
		).Scan(&recordID)
		if err != nil {
			return 0, fmt.Errorf("failed to insert record: %w", err)
		}

		if _, err := tx.Exec(ctx,
			"INSERT INTO payment_group_links (group_id, pay_record_id) VALUES ($1, $2)",
			groupID, recordID,
		); err != nil {
			return 0, fmt.Errorf("failed to insert group link: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return groupID, nil
}

// DeleteLatestGroup removes the most recently created group in the
// context with all its links and obligations, in one transaction.
func (s *PostgresStore) DeleteLatestGroup(ctx context.Context, c models.Context) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var groupID int64
	err = tx.QueryRow(ctx,
		`SELECT group_id FROM payment_groups
		 WHERE chat_id = $1 AND thread_id = $2
		 ORDER BY created_at DESC, group_id DESC LIMIT 1`,
		c.ChatID, c.ThreadID,
	).Scan(&groupID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to find latest group: %w", err)
	}

	rows, err := tx.Query(ctx,
		"SELECT pay_record_id FROM payment_group_links WHERE group_id = $1", groupID)
	if err != nil {
		return false, fmt.Errorf("failed to list group records: %w", err)
	}
	recordIDs, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return false, fmt.Errorf("failed to scan group records: %w", err)
	}

	if _, err := tx.Exec(ctx,
		"DELETE FROM payment_group_links WHERE group_id = $1", groupID); err != nil {
		return false, fmt.Errorf("failed to delete group links: %w", err)
	}
	if len(recordIDs) > 0 {
		if _, err := tx.Exec(ctx,
			"DELETE FROM pay_records WHERE pay_record_id = ANY($1)", recordIDs); err != nil {
			return false, fmt.Errorf("failed to delete records: %w", err)
		}
	}
	if _, err := tx.Exec(ctx,
		"DELETE FROM payment_groups WHERE group_id = $1", groupID); err != nil {
		return false, fmt.Errorf("failed to delete group: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// Obligations returns all obligations for the context in creation order.
func (s *PostgresStore) Obligations(ctx context.Context, c models.Context) ([]models.PayRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT pay_record_id, from_user_id, to_user_id, currency, value_cents, created_at
		 FROM pay_records
		 WHERE chat_id = $1 AND thread_id = $2
		 ORDER BY created_at ASC, pay_record_id ASC`,
		c.ChatID, c.ThreadID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query obligations: %w", err)
	}
	defer rows.Close()

	var records []models.PayRecord
	for rows.Next() {
		r := models.PayRecord{Context: c}
		var cents int64
		if err := rows.Scan(&r.ID, &r.FromUserID, &r.ToUserID, &r.Currency, &cents, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan obligation: %w", err)
		}
		r.Value = money.Amount(cents)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate obligations: %w", err)
	}
	return records, nil
}

// GroupedObligations returns all obligations for the context with their
// owning groups, in creation order.
func (s *PostgresStore) GroupedObligations(ctx context.Context, c models.Context) ([]storage.GroupedRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT r.pay_record_id, r.from_user_id, r.to_user_id, r.currency, r.value_cents, r.created_at,
		        COALESCE(g.group_id, 0), COALESCE(g.name, '')
		 FROM pay_records r
		 LEFT JOIN payment_group_links l ON r.pay_record_id = l.pay_record_id
		 LEFT JOIN payment_groups g ON l.group_id = g.group_id
		 WHERE r.chat_id = $1 AND r.thread_id = $2
		 ORDER BY r.created_at ASC, r.pay_record_id ASC`,
		c.ChatID, c.ThreadID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query grouped obligations: %w", err)
	}
	defer rows.Close()

	var out []storage.GroupedRecord
	for rows.Next() {
		gr := storage.GroupedRecord{Record: models.PayRecord{Context: c}}
		var cents int64
		if err := rows.Scan(
			&gr.Record.ID, &gr.Record.FromUserID, &gr.Record.ToUserID,
			&gr.Record.Currency, &cents, &gr.Record.CreatedAt,
			&gr.GroupID, &gr.GroupName,
		); err != nil {
			return nil, fmt.Errorf("failed to scan grouped obligation: %w", err)
		}
		gr.Record.Value = money.Amount(cents)
		out = append(out, gr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate grouped obligations: %w", err)
	}
	return out, nil
}
