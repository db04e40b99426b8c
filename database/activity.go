package database

import (
	"context"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 500
)

// record hands one event to the recorder. It runs after commit and never
// fails the caller.
func (s *DataService) record(actor Actor, boardID int64, action, entityType string, entityID int64, before, after any) {
	s.recorder.Record(ActivityEvent{
		BoardID:    boardID,
		UserID:     actor.UserID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Before:     snapshot(before),
		After:      snapshot(after),
		CreatedAt:  s.now(),
	})
}

// AppendActivity persists one event. It is the sink behind the recorder.
func (s *DataService) AppendActivity(ctx context.Context, ev ActivityEvent) error {
	var before, after any
	if len(ev.Before) > 0 {
		before = string(ev.Before)
	}
	if len(ev.After) > 0 {
		after = string(ev.After)
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.now()
	}
	_, err := s.conn.ExecContext(ctx, `INSERT INTO board_activity
		(board_id, user_id, action, entity_type, entity_id, before_json, after_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.BoardID, ev.UserID, ev.Action, ev.EntityType, ev.EntityID, before, after, ev.CreatedAt,
	)
	return storageErr("append", "activity", ev.BoardID, err)
}

// ListActivity returns the newest events of a board first.
func (s *DataService) ListActivity(ctx context.Context, actor Actor, boardID int64, limit int) ([]ActivityEvent, error) {
	if _, err := s.authorize(ctx, s.conn, actor, boardID, RoleViewer); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	if limit > maxActivityLimit {
		limit = maxActivityLimit
	}

	rows, err := s.conn.QueryContext(ctx, `SELECT id, board_id, user_id, action, entity_type, entity_id,
		COALESCE(before_json, ''), COALESCE(after_json, ''), created_at
		FROM board_activity WHERE board_id = ? ORDER BY id DESC LIMIT ?`, boardID, limit)
	if err != nil {
		return nil, storageErr("list", "activity", boardID, err)
	}
	defer rows.Close()

	events := []ActivityEvent{}
	for rows.Next() {
		var ev ActivityEvent
		var before, after string
		if err := rows.Scan(&ev.ID, &ev.BoardID, &ev.UserID, &ev.Action, &ev.EntityType, &ev.EntityID,
			&before, &after, &ev.CreatedAt); err != nil {
			return nil, storageErr("list", "activity", boardID, err)
		}
		if before != "" {
			ev.Before = []byte(before)
		}
		if after != "" {
			ev.After = []byte(after)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list", "activity", boardID, err)
	}
	return events, nil
}
