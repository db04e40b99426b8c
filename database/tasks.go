package database

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"strings"
)

const taskColumns = `id, board_id, title, description, status, priority, position, assigned_to,
	created_by, due_date, estimate, effort_used, sprint_id, labels, created_at, updated_at`

func scanTask(r rowScanner) (*Task, error) {
	var t Task
	var labels string
	if err := r.Scan(&t.ID, &t.BoardID, &t.Title, &t.Description, &t.Status, &t.Priority, &t.Position,
		&t.AssignedTo, &t.CreatedBy, &t.DueDate, &t.Estimate, &t.EffortUsed, &t.SprintID, &labels,
		&t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Labels = splitLabels(labels)
	return &t, nil
}

// loadTask fetches a task of the board. Inside a transaction the row is
// locked where the dialect supports it.
func (s *DataService) loadTask(ctx context.Context, q querier, boardID, taskID int64) (*Task, error) {
	query := "SELECT " + taskColumns + " FROM board_tasks WHERE board_id = ? AND id = ?"
	if _, ok := q.(*Tx); ok {
		query += s.dialect.ForUpdate()
	}
	t, err := scanTask(q.QueryRowContext(ctx, query, boardID, taskID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("get", "task", taskID)
	}
	if err != nil {
		return nil, storageErr("get", "task", taskID, err)
	}
	return t, nil
}

// TaskFilter narrows ListTasks. Zero values match everything.
type TaskFilter struct {
	Status   string
	SprintID int64
}

// ListTasks returns the board's tasks grouped by lane, lanes in board
// position order and tasks in lane position order.
func (s *DataService) ListTasks(ctx context.Context, actor Actor, boardID int64, filter TaskFilter) ([]Task, error) {
	if _, err := s.authorize(ctx, s.conn, actor, boardID, RoleViewer); err != nil {
		return nil, err
	}

	query := "SELECT " + taskColumns + " FROM board_tasks WHERE board_id = ?"
	args := []any{boardID}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.SprintID != 0 {
		query += " AND sprint_id = ?"
		args = append(args, filter.SprintID)
	}
	query += ` ORDER BY (SELECT s.position FROM board_statuses s
		WHERE s.board_id = board_tasks.board_id AND s.name = board_tasks.status), status, position, id`

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list", "task", boardID, err)
	}
	defer rows.Close()

	tasks := []Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, storageErr("list", "task", boardID, err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list", "task", boardID, err)
	}
	return tasks, nil
}

func (s *DataService) GetTask(ctx context.Context, actor Actor, boardID, taskID int64) (*Task, error) {
	if _, err := s.authorize(ctx, s.conn, actor, boardID, RoleViewer); err != nil {
		return nil, err
	}
	return s.loadTask(ctx, s.conn, boardID, taskID)
}

func validateEffort(op string, id int64, estimate, effort *int) error {
	if estimate != nil && *estimate < 0 {
		return invalid(op, "task", id, "estimate must not be negative")
	}
	if effort != nil && *effort < 0 {
		return invalid(op, "task", id, "effort_used must not be negative")
	}
	return nil
}

func checkSprint(ctx context.Context, q querier, op string, boardID int64, sprintID *int64) error {
	if sprintID == nil {
		return nil
	}
	var n int
	if err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM board_sprints WHERE board_id = ? AND id = ?", boardID, *sprintID,
	).Scan(&n); err != nil {
		return storageErr(op, "sprint", *sprintID, err)
	}
	if n == 0 {
		return invalid(op, "task", 0, "sprint %d does not belong to this board", *sprintID)
	}
	return nil
}

// CreateTask appends a task to the end of its lane. Unknown lane and
// priority names are registered on the fly.
func (s *DataService) CreateTask(ctx context.Context, actor Actor, boardID int64, in TaskInput) (*Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, invalid("create", "task", 0, "title is required")
	}
	if err := validateEffort("create", 0, in.Estimate, in.EffortUsed); err != nil {
		return nil, err
	}
	status := strings.TrimSpace(in.Status)
	if status == "" {
		status = DefaultLane
	}
	priority := strings.TrimSpace(in.Priority)
	if priority == "" {
		priority = DefaultPriority
	}
	sprintID := clearableID(in.SprintID)
	assignee := clearableID(in.AssignedTo)

	var task *Task
	err := s.WithTx(ctx, func(tx *Tx) error {
		if _, err := s.authorize(ctx, tx, actor, boardID, RoleMember); err != nil {
			return err
		}
		if err := checkSprint(ctx, tx, "create", boardID, sprintID); err != nil {
			return err
		}
		if err := s.lockLanes(ctx, tx, boardID, status); err != nil {
			return err
		}
		if _, err := resolveOrCreate(ctx, tx, laneTaxonomy, boardID, status); err != nil {
			return err
		}
		if _, err := resolveOrCreate(ctx, tx, priorityTaxonomy, boardID, priority); err != nil {
			return err
		}
		position, err := nextPosition(ctx, tx, boardID, status)
		if err != nil {
			return err
		}

		now := s.now()
		task, err = scanTask(tx.QueryRowContext(ctx, `INSERT INTO board_tasks
			(board_id, title, description, status, priority, position, assigned_to, created_by,
			due_date, estimate, effort_used, sprint_id, labels, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING `+taskColumns,
			boardID, title, in.Description, status, priority, position, nullableInt64(assignee), actor.UserID,
			nullableDate(in.DueDate), nullableInt(in.Estimate), nullableInt(in.EffortUsed), nullableInt64(sprintID),
			joinLabels(in.Labels), now, now,
		))
		if err != nil {
			return storageErr("create", "task", 0, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(actor, boardID, "create", "task", task.ID, nil, task)
	return task, nil
}

// applyTaskPatch updates the plain fields of task and, when status or
// position changed, moves it. It runs inside the caller's transaction.
func (s *DataService) applyTaskPatch(ctx context.Context, tx *Tx, task *Task, patch TaskPatch) error {
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return invalid("update", "task", task.ID, "title must not be blank")
		}
		task.Title = title
	}
	if patch.Description != nil {
		task.Description = *patch.Description
	}
	if patch.Priority != nil {
		name := strings.TrimSpace(*patch.Priority)
		if name == "" {
			return invalid("update", "task", task.ID, "priority must not be blank")
		}
		p, err := resolveOrCreate(ctx, tx, priorityTaxonomy, task.BoardID, name)
		if err != nil {
			return err
		}
		task.Priority = p.Name
	}
	if patch.AssignedTo.Set {
		task.AssignedTo = clearableID(patch.AssignedTo.Value)
	}
	if patch.DueDate.Set {
		task.DueDate = patch.DueDate.Value
	}
	if err := validateEffort("update", task.ID, patch.Estimate.Value, patch.EffortUsed.Value); err != nil {
		return err
	}
	if patch.Estimate.Set {
		task.Estimate = patch.Estimate.Value
	}
	if patch.EffortUsed.Set {
		task.EffortUsed = patch.EffortUsed.Value
	}
	if patch.SprintID.Set {
		sprintID := clearableID(patch.SprintID.Value)
		if err := checkSprint(ctx, tx, "update", task.BoardID, sprintID); err != nil {
			return err
		}
		task.SprintID = sprintID
	}
	if patch.Labels != nil {
		task.Labels = cleanLabels(*patch.Labels)
	}

	task.UpdatedAt = s.now()
	if _, err := tx.ExecContext(ctx, `UPDATE board_tasks SET title = ?, description = ?, priority = ?,
		assigned_to = ?, due_date = ?, estimate = ?, effort_used = ?, sprint_id = ?, labels = ?, updated_at = ?
		WHERE id = ?`,
		task.Title, task.Description, task.Priority, nullableInt64(task.AssignedTo), nullableDate(task.DueDate),
		nullableInt(task.Estimate), nullableInt(task.EffortUsed), nullableInt64(task.SprintID),
		joinLabels(task.Labels), task.UpdatedAt, task.ID,
	); err != nil {
		return storageErr("update", "task", task.ID, err)
	}

	switch {
	case patch.Status != nil && strings.TrimSpace(*patch.Status) != task.Status:
		target := math.MaxInt32
		if patch.Position != nil {
			target = *patch.Position
		}
		return s.moveTask(ctx, tx, task, *patch.Status, target)
	case patch.Position != nil && *patch.Position != task.Position:
		return s.moveTask(ctx, tx, task, task.Status, *patch.Position)
	}
	return nil
}

// UpdateTask applies a partial update. A new status moves the task to the
// end of that lane unless a position is also given.
func (s *DataService) UpdateTask(ctx context.Context, actor Actor, boardID, taskID int64, patch TaskPatch) (*Task, error) {
	var before, after *Task
	err := s.WithTx(ctx, func(tx *Tx) error {
		if _, err := s.authorize(ctx, tx, actor, boardID, RoleMember); err != nil {
			return err
		}
		task, err := s.loadTask(ctx, tx, boardID, taskID)
		if err != nil {
			return err
		}
		snap := *task
		before = &snap
		if err := s.applyTaskPatch(ctx, tx, task, patch); err != nil {
			return err
		}
		after = task
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(actor, boardID, "update", "task", taskID, before, after)
	return after, nil
}

// DeleteTask removes a task and closes the gap it leaves in its lane.
func (s *DataService) DeleteTask(ctx context.Context, actor Actor, boardID, taskID int64) error {
	var before *Task
	err := s.WithTx(ctx, func(tx *Tx) error {
		if _, err := s.authorize(ctx, tx, actor, boardID, RoleMember); err != nil {
			return err
		}
		var err error
		before, err = s.loadTask(ctx, tx, boardID, taskID)
		if err != nil {
			return err
		}
		if err := s.lockLanes(ctx, tx, boardID, before.Status); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM board_tasks WHERE id = ?", taskID); err != nil {
			return storageErr("delete", "task", taskID, err)
		}
		return closeGap(ctx, tx, boardID, before.Status, before.Position)
	})
	if err != nil {
		return err
	}

	s.record(actor, boardID, "delete", "task", taskID, before, nil)
	return nil
}

// BulkUpdateTasks applies the same patch to several tasks in one transaction.
func (s *DataService) BulkUpdateTasks(ctx context.Context, actor Actor, boardID int64, taskIDs []int64, patch TaskPatch) ([]Task, error) {
	if len(taskIDs) == 0 {
		return nil, invalid("bulk_update", "task", boardID, "task_ids must not be empty")
	}
	if patch.Position != nil {
		return nil, invalid("bulk_update", "task", boardID, "position cannot be set in a bulk update")
	}

	var before, after []Task
	err := s.WithTx(ctx, func(tx *Tx) error {
		if _, err := s.authorize(ctx, tx, actor, boardID, RoleMember); err != nil {
			return err
		}
		seen := make(map[int64]bool, len(taskIDs))
		for _, id := range taskIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			task, err := s.loadTask(ctx, tx, boardID, id)
			if err != nil {
				return err
			}
			before = append(before, *task)
			if err := s.applyTaskPatch(ctx, tx, task, patch); err != nil {
				return err
			}
			after = append(after, *task)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(actor, boardID, "bulk_update", "board", boardID, before, after)
	return after, nil
}
