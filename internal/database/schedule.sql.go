package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const scheduleBlockColumns = `id, blocked_date, delivery_blocked, pickup_blocked, reason, created_at, updated_at`

func scanScheduleBlock(row interface{ Scan(...interface{}) error }) (ScheduleBlock, error) {
	var i ScheduleBlock
	err := row.Scan(
		&i.ID,
		&i.BlockedDate,
		&i.DeliveryBlocked,
		&i.PickupBlocked,
		&i.Reason,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listScheduleBlocks = `-- name: ListScheduleBlocks :many
SELECT ` + scheduleBlockColumns + ` FROM schedule_blocks
WHERE ($1::date IS NULL OR blocked_date >= $1)
  AND ($2::date IS NULL OR blocked_date <= $2)
ORDER BY blocked_date ASC
`

type ListScheduleBlocksParams struct {
	FromDate pgtype.Date `json:"from_date"`
	ToDate   pgtype.Date `json:"to_date"`
}

func (q *Queries) ListScheduleBlocks(ctx context.Context, arg ListScheduleBlocksParams) ([]ScheduleBlock, error) {
	rows, err := q.db.Query(ctx, listScheduleBlocks, arg.FromDate, arg.ToDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ScheduleBlock{}
	for rows.Next() {
		i, err := scanScheduleBlock(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getScheduleBlockByDate = `-- name: GetScheduleBlockByDate :one
SELECT ` + scheduleBlockColumns + ` FROM schedule_blocks WHERE blocked_date = $1
`

func (q *Queries) GetScheduleBlockByDate(ctx context.Context, blockedDate pgtype.Date) (ScheduleBlock, error) {
	return scanScheduleBlock(q.db.QueryRow(ctx, getScheduleBlockByDate, blockedDate))
}

const upsertScheduleBlock = `-- name: UpsertScheduleBlock :one
INSERT INTO schedule_blocks (blocked_date, delivery_blocked, pickup_blocked, reason)
VALUES ($1, $2, $3, $4)
ON CONFLICT (blocked_date) DO UPDATE
SET delivery_blocked = EXCLUDED.delivery_blocked,
    pickup_blocked = EXCLUDED.pickup_blocked,
    reason = EXCLUDED.reason,
    updated_at = now()
RETURNING ` + scheduleBlockColumns

type UpsertScheduleBlockParams struct {
	BlockedDate     pgtype.Date `json:"blocked_date"`
	DeliveryBlocked bool        `json:"delivery_blocked"`
	PickupBlocked   bool        `json:"pickup_blocked"`
	Reason          pgtype.Text `json:"reason"`
}

func (q *Queries) UpsertScheduleBlock(ctx context.Context, arg UpsertScheduleBlockParams) (ScheduleBlock, error) {
	return scanScheduleBlock(q.db.QueryRow(ctx, upsertScheduleBlock,
		arg.BlockedDate,
		arg.DeliveryBlocked,
		arg.PickupBlocked,
		arg.Reason,
	))
}

const deleteScheduleBlock = `-- name: DeleteScheduleBlock :one
DELETE FROM schedule_blocks WHERE blocked_date = $1
RETURNING id
`

func (q *Queries) DeleteScheduleBlock(ctx context.Context, blockedDate pgtype.Date) (uuid.UUID, error) {
	row := q.db.QueryRow(ctx, deleteScheduleBlock, blockedDate)
	var out uuid.UUID
	err := row.Scan(&out)
	return out, err
}
