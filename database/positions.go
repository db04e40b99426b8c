package database

import (
	"context"
	"sort"
	"strings"
)

// lockLanes takes the lane locks for a transaction in a stable order so two
// cross-lane moves cannot deadlock.
func (s *DataService) lockLanes(ctx context.Context, tx *Tx, boardID int64, lanes ...string) error {
	uniq := make([]string, 0, len(lanes))
	seen := make(map[string]bool, len(lanes))
	for _, l := range lanes {
		if !seen[l] {
			seen[l] = true
			uniq = append(uniq, l)
		}
	}
	sort.Strings(uniq)
	for _, l := range uniq {
		if err := s.dialect.LockLane(ctx, tx, boardID, l); err != nil {
			return storageErr("lock", "status", boardID, err)
		}
	}
	return nil
}

// nextPosition is one past the last occupied slot of a lane, 0 when empty.
func nextPosition(ctx context.Context, q querier, boardID int64, lane string) (int, error) {
	var next int
	err := q.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(position), -1) + 1 FROM board_tasks WHERE board_id = ? AND status = ?",
		boardID, lane,
	).Scan(&next)
	if err != nil {
		return 0, storageErr("allocate", "position", boardID, err)
	}
	return next, nil
}

type slot struct {
	id       int64
	position int
}

// laneSlots loads the lane in display order, locking rows where supported.
func (s *DataService) laneSlots(ctx context.Context, tx *Tx, boardID int64, lane string) ([]slot, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT id, position FROM board_tasks WHERE board_id = ? AND status = ? ORDER BY position, id"+s.dialect.ForUpdate(),
		boardID, lane)
	if err != nil {
		return nil, storageErr("load", "status", boardID, err)
	}
	defer rows.Close()

	var slots []slot
	for rows.Next() {
		var sl slot
		if err := rows.Scan(&sl.id, &sl.position); err != nil {
			return nil, storageErr("load", "status", boardID, err)
		}
		slots = append(slots, sl)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("load", "status", boardID, err)
	}
	return slots, nil
}

// moveTask puts task at toPosition of toLane and keeps both the target and
// the source lane dense. task is updated in place.
func (s *DataService) moveTask(ctx context.Context, tx *Tx, task *Task, toLane string, toPosition int) error {
	toLane = strings.TrimSpace(toLane)
	if toLane == "" {
		return invalid("move", "task", task.ID, "target status is required")
	}
	fromLane, fromPosition := task.Status, task.Position

	if err := s.lockLanes(ctx, tx, task.BoardID, fromLane, toLane); err != nil {
		return err
	}
	lane, err := resolveOrCreate(ctx, tx, laneTaxonomy, task.BoardID, toLane)
	if err != nil {
		return err
	}

	slots, err := s.laneSlots(ctx, tx, task.BoardID, lane.Name)
	if err != nil {
		return err
	}
	order := make([]slot, 0, len(slots)+1)
	for _, sl := range slots {
		if sl.id != task.ID {
			order = append(order, sl)
		}
	}

	idx := toPosition
	if idx < 0 {
		idx = 0
	}
	if idx > len(order) {
		idx = len(order)
	}
	order = append(order, slot{})
	copy(order[idx+1:], order[idx:])
	order[idx] = slot{id: task.ID, position: -1}

	now := s.now()
	for i, sl := range order {
		if sl.id == task.ID {
			if _, err := tx.ExecContext(ctx,
				"UPDATE board_tasks SET status = ?, position = ?, updated_at = ? WHERE id = ?",
				lane.Name, i, now, task.ID,
			); err != nil {
				return storageErr("move", "task", task.ID, err)
			}
			continue
		}
		if sl.position == i {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE board_tasks SET position = ? WHERE id = ?", i, sl.id,
		); err != nil {
			return storageErr("move", "task", sl.id, err)
		}
	}

	if fromLane != lane.Name {
		if err := closeGap(ctx, tx, task.BoardID, fromLane, fromPosition); err != nil {
			return err
		}
	}

	task.Status = lane.Name
	task.Position = idx
	task.UpdatedAt = now
	return nil
}

// closeGap shifts every task after position in lane up by one slot.
func closeGap(ctx context.Context, q querier, boardID int64, lane string, position int) error {
	if _, err := q.ExecContext(ctx,
		"UPDATE board_tasks SET position = position - 1 WHERE board_id = ? AND status = ? AND position > ?",
		boardID, lane, position,
	); err != nil {
		return storageErr("densify", "status", boardID, err)
	}
	return nil
}

// reassignLane moves every task of from to the head of to, preserving their
// order. Tasks already in to shift down behind them.
func (s *DataService) reassignLane(ctx context.Context, tx *Tx, boardID int64, from, to string) (int, error) {
	if err := s.lockLanes(ctx, tx, boardID, from, to); err != nil {
		return 0, err
	}
	moving, err := s.laneSlots(ctx, tx, boardID, from)
	if err != nil {
		return 0, err
	}
	if len(moving) == 0 || from == to {
		return len(moving), nil
	}
	if _, err := s.laneSlots(ctx, tx, boardID, to); err != nil {
		return 0, err
	}

	now := s.now()
	if _, err := tx.ExecContext(ctx,
		"UPDATE board_tasks SET position = position + ? WHERE board_id = ? AND status = ?",
		len(moving), boardID, to,
	); err != nil {
		return 0, storageErr("reassign", "status", boardID, err)
	}
	for i, sl := range moving {
		if _, err := tx.ExecContext(ctx,
			"UPDATE board_tasks SET status = ?, position = ?, updated_at = ? WHERE id = ?",
			to, i, now, sl.id,
		); err != nil {
			return 0, storageErr("reassign", "task", sl.id, err)
		}
	}
	return len(moving), nil
}

// ReorderTasks applies a batch of moves in order inside one transaction.
// Every descriptor is validated before anything changes; any failure rolls
// the whole batch back.
func (s *DataService) ReorderTasks(ctx context.Context, actor Actor, boardID int64, moves []Move) ([]Task, error) {
	if len(moves) == 0 {
		return nil, invalid("reorder", "task", boardID, "moves must not be empty")
	}
	for i, m := range moves {
		if m.TaskID == nil || m.lane() == nil || m.ToPosition == nil {
			return nil, invalid("reorder", "task", boardID, "move %d: task_id, to_status and to_position are required", i)
		}
		if strings.TrimSpace(*m.lane()) == "" {
			return nil, invalid("reorder", "task", boardID, "move %d: to_status must not be blank", i)
		}
	}

	type placement struct {
		TaskID   int64  `json:"task_id"`
		Status   string `json:"status"`
		Position int    `json:"position"`
	}
	var before []placement
	var touched []int64
	seen := make(map[int64]bool)

	err := s.WithTx(ctx, func(tx *Tx) error {
		if _, err := s.authorize(ctx, tx, actor, boardID, RoleMember); err != nil {
			return err
		}
		for _, m := range moves {
			task, err := s.loadTask(ctx, tx, boardID, *m.TaskID)
			if err != nil {
				return err
			}
			if !seen[task.ID] {
				seen[task.ID] = true
				touched = append(touched, task.ID)
				before = append(before, placement{task.ID, task.Status, task.Position})
			}
			if err := s.moveTask(ctx, tx, task, *m.lane(), *m.ToPosition); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// final positions can shift after a later move in the same batch
	tasks := make([]Task, 0, len(touched))
	after := make([]placement, 0, len(touched))
	for _, id := range touched {
		t, err := s.loadTask(ctx, s.conn, boardID, id)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
		after = append(after, placement{t.ID, t.Status, t.Position})
	}

	s.record(actor, boardID, "reorder", "board", boardID, before, after)
	return tasks, nil
}
