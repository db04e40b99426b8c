package database

import (
	"context"
	"database/sql"
	"errors"
)

const dependencyColumns = "id, board_id, blocker_task_id, blocked_task_id, created_at"

func scanDependency(r rowScanner) (*Dependency, error) {
	var d Dependency
	if err := r.Scan(&d.ID, &d.BoardID, &d.BlockerTaskID, &d.BlockedTaskID, &d.CreatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func queryDependencies(ctx context.Context, q querier, query string, args ...any) ([]Dependency, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deps := []Dependency{}
	for rows.Next() {
		d, err := scanDependency(rows)
		if err != nil {
			return nil, err
		}
		deps = append(deps, *d)
	}
	return deps, rows.Err()
}

// AddDependency records that blocker must finish before blocked. Self edges,
// duplicates and the direct reverse edge are rejected. Longer cycles are not
// searched for.
func (s *DataService) AddDependency(ctx context.Context, actor Actor, boardID, blockerID, blockedID int64) (*Dependency, error) {
	if blockerID <= 0 || blockedID <= 0 {
		return nil, invalid("add", "dependency", 0, "blocker_task_id and blocked_task_id are required")
	}
	if blockerID == blockedID {
		return nil, invalid("add", "dependency", 0, "a task cannot depend on itself")
	}

	var dep *Dependency
	err := s.WithTx(ctx, func(tx *Tx) error {
		if _, err := s.authorize(ctx, tx, actor, boardID, RoleMember); err != nil {
			return err
		}

		var onBoard int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM board_tasks WHERE board_id = ? AND id IN (?, ?)",
			boardID, blockerID, blockedID,
		).Scan(&onBoard); err != nil {
			return storageErr("add", "dependency", 0, err)
		}
		if onBoard != 2 {
			return invalid("add", "dependency", 0, "both tasks must belong to this board")
		}

		var existingBlocker int64
		err := tx.QueryRowContext(ctx, `SELECT blocker_task_id FROM task_dependencies
			WHERE board_id = ? AND ((blocker_task_id = ? AND blocked_task_id = ?) OR (blocker_task_id = ? AND blocked_task_id = ?))
			LIMIT 1`,
			boardID, blockerID, blockedID, blockedID, blockerID,
		).Scan(&existingBlocker)
		switch {
		case err == nil && existingBlocker == blockerID:
			return invalid("add", "dependency", 0, "dependency already exists")
		case err == nil:
			return invalid("add", "dependency", 0, "dependency would create a cycle")
		case !errors.Is(err, sql.ErrNoRows):
			return storageErr("add", "dependency", 0, err)
		}

		dep, err = scanDependency(tx.QueryRowContext(ctx, `INSERT INTO task_dependencies
			(board_id, blocker_task_id, blocked_task_id, created_at) VALUES (?, ?, ?, ?)
			RETURNING `+dependencyColumns,
			boardID, blockerID, blockedID, s.now()))
		if err != nil {
			return storageErr("add", "dependency", 0, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(actor, boardID, "create", "dependency", dep.ID, nil, dep)
	return dep, nil
}

func (s *DataService) RemoveDependency(ctx context.Context, actor Actor, boardID, dependencyID int64) error {
	var before *Dependency
	err := s.WithTx(ctx, func(tx *Tx) error {
		if _, err := s.authorize(ctx, tx, actor, boardID, RoleMember); err != nil {
			return err
		}
		var err error
		before, err = scanDependency(tx.QueryRowContext(ctx,
			"SELECT "+dependencyColumns+" FROM task_dependencies WHERE board_id = ? AND id = ?",
			boardID, dependencyID))
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("remove", "dependency", dependencyID)
		}
		if err != nil {
			return storageErr("remove", "dependency", dependencyID, err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM task_dependencies WHERE id = ?", dependencyID); err != nil {
			return storageErr("remove", "dependency", dependencyID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.record(actor, boardID, "delete", "dependency", dependencyID, before, nil)
	return nil
}

func (s *DataService) ListDependencies(ctx context.Context, actor Actor, boardID int64) ([]Dependency, error) {
	if _, err := s.authorize(ctx, s.conn, actor, boardID, RoleViewer); err != nil {
		return nil, err
	}
	deps, err := queryDependencies(ctx, s.conn,
		"SELECT "+dependencyColumns+" FROM task_dependencies WHERE board_id = ? ORDER BY id", boardID)
	if err != nil {
		return nil, storageErr("list", "dependency", boardID, err)
	}
	return deps, nil
}

// ListTaskDependencies splits the edges touching one task into the tasks it
// waits on and the tasks waiting on it.
func (s *DataService) ListTaskDependencies(ctx context.Context, actor Actor, boardID, taskID int64) (*TaskDependencies, error) {
	if _, err := s.authorize(ctx, s.conn, actor, boardID, RoleViewer); err != nil {
		return nil, err
	}
	if _, err := s.loadTask(ctx, s.conn, boardID, taskID); err != nil {
		return nil, err
	}

	out := &TaskDependencies{TaskID: taskID}
	var err error
	out.BlockedBy, err = queryDependencies(ctx, s.conn,
		"SELECT "+dependencyColumns+" FROM task_dependencies WHERE board_id = ? AND blocked_task_id = ? ORDER BY id",
		boardID, taskID)
	if err != nil {
		return nil, storageErr("list", "dependency", taskID, err)
	}
	out.Blocking, err = queryDependencies(ctx, s.conn,
		"SELECT "+dependencyColumns+" FROM task_dependencies WHERE board_id = ? AND blocker_task_id = ? ORDER BY id",
		boardID, taskID)
	if err != nil {
		return nil, storageErr("list", "dependency", taskID, err)
	}
	return out, nil
}
