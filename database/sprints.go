package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

const sprintColumns = "id, board_id, name, goal, start_date, end_date, is_active, closed_at, created_at"

func scanSprint(r rowScanner) (*Sprint, error) {
	var sp Sprint
	if err := r.Scan(&sp.ID, &sp.BoardID, &sp.Name, &sp.Goal, &sp.StartDate, &sp.EndDate,
		&sp.IsActive, &sp.ClosedAt, &sp.CreatedAt); err != nil {
		return nil, err
	}
	return &sp, nil
}

func loadSprint(ctx context.Context, q querier, boardID, sprintID int64) (*Sprint, error) {
	sp, err := scanSprint(q.QueryRowContext(ctx,
		"SELECT "+sprintColumns+" FROM board_sprints WHERE board_id = ? AND id = ?", boardID, sprintID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("get", "sprint", sprintID)
	}
	if err != nil {
		return nil, storageErr("get", "sprint", sprintID, err)
	}
	return sp, nil
}

func (s *DataService) ListSprints(ctx context.Context, actor Actor, boardID int64) ([]Sprint, error) {
	if _, err := s.authorize(ctx, s.conn, actor, boardID, RoleViewer); err != nil {
		return nil, err
	}
	rows, err := s.conn.QueryContext(ctx,
		"SELECT "+sprintColumns+" FROM board_sprints WHERE board_id = ? ORDER BY start_date, id", boardID)
	if err != nil {
		return nil, storageErr("list", "sprint", boardID, err)
	}
	defer rows.Close()

	sprints := []Sprint{}
	for rows.Next() {
		sp, err := scanSprint(rows)
		if err != nil {
			return nil, storageErr("list", "sprint", boardID, err)
		}
		sprints = append(sprints, *sp)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list", "sprint", boardID, err)
	}
	return sprints, nil
}

func (s *DataService) GetSprint(ctx context.Context, actor Actor, boardID, sprintID int64) (*Sprint, error) {
	if _, err := s.authorize(ctx, s.conn, actor, boardID, RoleViewer); err != nil {
		return nil, err
	}
	return loadSprint(ctx, s.conn, boardID, sprintID)
}

func (s *DataService) CreateSprint(ctx context.Context, actor Actor, boardID int64, in SprintInput) (*Sprint, error) {
	if in.StartDate == nil || in.EndDate == nil {
		return nil, invalid("create", "sprint", 0, "start_date and end_date are required")
	}
	if in.StartDate.After(in.EndDate.Time) {
		return nil, invalid("create", "sprint", 0, "start_date must not be after end_date")
	}

	var sprint *Sprint
	err := s.WithTx(ctx, func(tx *Tx) error {
		if _, err := s.authorize(ctx, tx, actor, boardID, RoleMember); err != nil {
			return err
		}
		var err error
		sprint, err = scanSprint(tx.QueryRowContext(ctx, `INSERT INTO board_sprints
			(board_id, name, goal, start_date, end_date, is_active, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)
			RETURNING `+sprintColumns,
			boardID, strings.TrimSpace(in.Name), in.Goal, *in.StartDate, *in.EndDate, false, s.now()))
		if err != nil {
			return storageErr("create", "sprint", 0, err)
		}
		if in.IsActive {
			if err := activate(ctx, tx, boardID, sprint.ID); err != nil {
				return err
			}
			sprint.IsActive = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(actor, boardID, "create", "sprint", sprint.ID, nil, sprint)
	return sprint, nil
}

func (s *DataService) UpdateSprint(ctx context.Context, actor Actor, boardID, sprintID int64, patch SprintPatch) (*Sprint, error) {
	var before, after *Sprint
	err := s.WithTx(ctx, func(tx *Tx) error {
		if _, err := s.authorize(ctx, tx, actor, boardID, RoleMember); err != nil {
			return err
		}
		var err error
		before, err = loadSprint(ctx, tx, boardID, sprintID)
		if err != nil {
			return err
		}
		updated := *before
		if patch.Name != nil {
			updated.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Goal != nil {
			updated.Goal = *patch.Goal
		}
		if patch.StartDate != nil {
			updated.StartDate = *patch.StartDate
		}
		if patch.EndDate != nil {
			updated.EndDate = *patch.EndDate
		}
		if updated.StartDate.After(updated.EndDate.Time) {
			return invalid("update", "sprint", sprintID, "start_date must not be after end_date")
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE board_sprints SET name = ?, goal = ?, start_date = ?, end_date = ? WHERE id = ?",
			updated.Name, updated.Goal, updated.StartDate, updated.EndDate, sprintID,
		); err != nil {
			return storageErr("update", "sprint", sprintID, err)
		}
		after = &updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(actor, boardID, "update", "sprint", sprintID, before, after)
	return after, nil
}

// DeleteSprint removes a sprint. Its tasks stay on the board unassigned.
func (s *DataService) DeleteSprint(ctx context.Context, actor Actor, boardID, sprintID int64) error {
	var before *Sprint
	err := s.WithTx(ctx, func(tx *Tx) error {
		if _, err := s.authorize(ctx, tx, actor, boardID, RoleMember); err != nil {
			return err
		}
		var err error
		before, err = loadSprint(ctx, tx, boardID, sprintID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM board_sprints WHERE id = ?", sprintID); err != nil {
			return storageErr("delete", "sprint", sprintID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.record(actor, boardID, "delete", "sprint", sprintID, before, nil)
	return nil
}

// activate makes sprintID the only active sprint of the board.
func activate(ctx context.Context, tx *Tx, boardID, sprintID int64) error {
	if _, err := tx.ExecContext(ctx,
		"UPDATE board_sprints SET is_active = ? WHERE board_id = ? AND id <> ?", false, boardID, sprintID,
	); err != nil {
		return storageErr("activate", "sprint", sprintID, err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE board_sprints SET is_active = ?, closed_at = NULL WHERE id = ?", true, sprintID,
	); err != nil {
		return storageErr("activate", "sprint", sprintID, err)
	}
	return nil
}

// ActivateSprint deactivates every other sprint of the board and activates
// this one in the same transaction.
func (s *DataService) ActivateSprint(ctx context.Context, actor Actor, boardID, sprintID int64) (*Sprint, error) {
	var before, after *Sprint
	err := s.WithTx(ctx, func(tx *Tx) error {
		if _, err := s.authorize(ctx, tx, actor, boardID, RoleMember); err != nil {
			return err
		}
		var err error
		before, err = loadSprint(ctx, tx, boardID, sprintID)
		if err != nil {
			return err
		}
		if err := activate(ctx, tx, boardID, sprintID); err != nil {
			return err
		}
		after, err = loadSprint(ctx, tx, boardID, sprintID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.record(actor, boardID, "activate", "sprint", sprintID, before, after)
	return after, nil
}

// CloseSprint deactivates the sprint and returns its unfinished tasks to the
// backlog by clearing their sprint.
func (s *DataService) CloseSprint(ctx context.Context, actor Actor, boardID, sprintID int64) (*Sprint, error) {
	var before, after *Sprint
	var detached int64
	err := s.WithTx(ctx, func(tx *Tx) error {
		if _, err := s.authorize(ctx, tx, actor, boardID, RoleMember); err != nil {
			return err
		}
		var err error
		before, err = loadSprint(ctx, tx, boardID, sprintID)
		if err != nil {
			return err
		}
		if before.ClosedAt != nil {
			return invalid("close", "sprint", sprintID, "sprint is already closed")
		}
		done, err := terminalLane(ctx, tx, boardID)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE board_sprints SET is_active = ?, closed_at = ? WHERE id = ?", false, s.now(), sprintID,
		); err != nil {
			return storageErr("close", "sprint", sprintID, err)
		}
		res, err := tx.ExecContext(ctx,
			"UPDATE board_tasks SET sprint_id = NULL, updated_at = ? WHERE board_id = ? AND sprint_id = ? AND status <> ?",
			s.now(), boardID, sprintID, done)
		if err != nil {
			return storageErr("close", "sprint", sprintID, err)
		}
		if detached, err = res.RowsAffected(); err != nil {
			return storageErr("close", "sprint", sprintID, err)
		}

		after, err = loadSprint(ctx, tx, boardID, sprintID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.record(actor, boardID, "close", "sprint", sprintID, before, map[string]any{
		"sprint":         after,
		"detached_tasks": detached,
	})
	return after, nil
}
