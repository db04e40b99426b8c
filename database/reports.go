package database

import (
	"context"
	"database/sql"
	"errors"
)

// terminalLane names the lane whose tasks count as complete: "done" when the
// board has it, otherwise the last lane.
func terminalLane(ctx context.Context, q querier, boardID int64) (string, error) {
	var name string
	err := q.QueryRowContext(ctx,
		"SELECT name FROM board_statuses WHERE board_id = ? AND LOWER(name) = 'done' ORDER BY id LIMIT 1", boardID,
	).Scan(&name)
	if err == nil {
		return name, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", storageErr("resolve", "status", boardID, err)
	}

	err = q.QueryRowContext(ctx,
		"SELECT name FROM board_statuses WHERE board_id = ? ORDER BY position DESC, id DESC LIMIT 1", boardID,
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "done", nil
	}
	if err != nil {
		return "", storageErr("resolve", "status", boardID, err)
	}
	return name, nil
}

type effortRow struct {
	status   string
	estimate *int
	effort   *int
}

// burnupTotals sums estimates over all rows and, for rows in done, the part
// of the estimate already spent.
func burnupTotals(rows []effortRow, done string) (scope, completed int) {
	for _, r := range rows {
		est := 0
		if r.estimate != nil {
			est = *r.estimate
		}
		scope += est
		if r.status != done {
			continue
		}
		used := 0
		if r.effort != nil {
			used = *r.effort
		}
		completed += min(est, used)
	}
	return scope, completed
}

// Burnup reports scope and completed effort for the board, or for one
// sprint when sprintID is set.
func (s *DataService) Burnup(ctx context.Context, actor Actor, boardID int64, sprintID *int64) (*Burnup, error) {
	if _, err := s.authorize(ctx, s.conn, actor, boardID, RoleViewer); err != nil {
		return nil, err
	}
	if sprintID != nil {
		if _, err := loadSprint(ctx, s.conn, boardID, *sprintID); err != nil {
			return nil, err
		}
	}
	done, err := terminalLane(ctx, s.conn, boardID)
	if err != nil {
		return nil, err
	}

	query := "SELECT status, estimate, effort_used FROM board_tasks WHERE board_id = ?"
	args := []any{boardID}
	if sprintID != nil {
		query += " AND sprint_id = ?"
		args = append(args, *sprintID)
	}
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("burnup", "board", boardID, err)
	}
	defer rows.Close()

	var efforts []effortRow
	for rows.Next() {
		var r effortRow
		if err := rows.Scan(&r.status, &r.estimate, &r.effort); err != nil {
			return nil, storageErr("burnup", "board", boardID, err)
		}
		efforts = append(efforts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("burnup", "board", boardID, err)
	}

	scope, completed := burnupTotals(efforts, done)
	return &Burnup{
		BoardID:        boardID,
		SprintID:       sprintID,
		DoneLane:       done,
		TaskCount:      len(efforts),
		ScopeTotal:     scope,
		CompletedTotal: completed,
	}, nil
}

// CFD snapshots the task count of every lane, empty lanes included.
func (s *DataService) CFD(ctx context.Context, actor Actor, boardID int64) (*CFD, error) {
	if _, err := s.authorize(ctx, s.conn, actor, boardID, RoleViewer); err != nil {
		return nil, err
	}
	rows, err := s.conn.QueryContext(ctx, `SELECT s.name, s.position, COUNT(t.id)
		FROM board_statuses s
		LEFT JOIN board_tasks t ON t.board_id = s.board_id AND t.status = s.name
		WHERE s.board_id = ?
		GROUP BY s.id, s.name, s.position
		ORDER BY s.position, s.id`, boardID)
	if err != nil {
		return nil, storageErr("cfd", "board", boardID, err)
	}
	defer rows.Close()

	out := &CFD{BoardID: boardID, GeneratedAt: s.now(), Lanes: []CFDLane{}}
	for rows.Next() {
		var l CFDLane
		if err := rows.Scan(&l.Lane, &l.Position, &l.Count); err != nil {
			return nil, storageErr("cfd", "board", boardID, err)
		}
		out.Lanes = append(out.Lanes, l)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("cfd", "board", boardID, err)
	}
	return out, nil
}
