package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

const boardColumns = "b.id, b.name, b.description, b.owner_id, b.sprint_start, b.sprint_end, b.background_color, b.created_at, b.updated_at"

func scanBoard(r rowScanner, extra ...any) (*Board, error) {
	var b Board
	dest := append([]any{&b.ID, &b.Name, &b.Description, &b.OwnerID, &b.SprintStart, &b.SprintEnd,
		&b.BackgroundColor, &b.CreatedAt, &b.UpdatedAt}, extra...)
	if err := r.Scan(dest...); err != nil {
		return nil, err
	}
	return &b, nil
}

func loadBoard(ctx context.Context, q querier, boardID int64) (*Board, error) {
	b, err := scanBoard(q.QueryRowContext(ctx, "SELECT "+boardColumns+" FROM boards b WHERE b.id = ?", boardID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("get", "board", boardID)
	}
	if err != nil {
		return nil, storageErr("get", "board", boardID, err)
	}
	return b, nil
}

func validSprintRange(start, end *Date) bool {
	return start == nil || end == nil || !start.After(end.Time)
}

// seedNames picks the names a new board starts with: the request's list, the
// creator's saved defaults, or the starter set, in that order.
func seedNames(requested, saved, starter []string) []string {
	if names := SanitizeNames(requested); len(names) > 0 {
		return names
	}
	if len(saved) > 0 {
		return saved
	}
	return starter
}

// CreateBoard creates a board owned by the actor and seeds its lanes and
// priorities.
func (s *DataService) CreateBoard(ctx context.Context, actor Actor, in BoardInput) (*Board, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("create", "board", 0, "board name is required")
	}
	if !validSprintRange(in.SprintStart, in.SprintEnd) {
		return nil, invalid("create", "board", 0, "sprint_start must not be after sprint_end")
	}

	var board *Board
	err := s.WithTx(ctx, func(tx *Tx) error {
		now := s.now()
		var err error
		board, err = scanBoard(tx.QueryRowContext(ctx, `INSERT INTO boards
			(name, description, owner_id, sprint_start, sprint_end, background_color, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id, name, description, owner_id, sprint_start, sprint_end, background_color, created_at, updated_at`,
			name, in.Description, actor.UserID, nullableDate(in.SprintStart), nullableDate(in.SprintEnd),
			strings.TrimSpace(in.BackgroundColor), now, now))
		if err != nil {
			return storageErr("create", "board", 0, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO board_members (board_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)",
			board.ID, actor.UserID, RoleOwner, now,
		); err != nil {
			return storageErr("create", "member", board.ID, err)
		}

		defaults, err := loadUserDefaults(ctx, tx, actor.UserID)
		if err != nil {
			return err
		}
		if err := seedEntries(ctx, tx, laneTaxonomy, board.ID,
			seedNames(in.Statuses, defaults.Statuses, StarterLanes)); err != nil {
			return err
		}
		if err := seedEntries(ctx, tx, priorityTaxonomy, board.ID,
			seedNames(in.Priorities, defaults.Priorities, StarterPriorities)); err != nil {
			return err
		}
		board.Role = RoleOwner
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(actor, board.ID, "create", "board", board.ID, nil, board)
	return board, nil
}

// ListBoards returns every board the actor belongs to.
func (s *DataService) ListBoards(ctx context.Context, actor Actor) ([]Board, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT `+boardColumns+`,
		CASE WHEN b.owner_id = ? THEN 'owner' ELSE COALESCE(m.role, '') END
		FROM boards b
		LEFT JOIN board_members m ON m.board_id = b.id AND m.user_id = ?
		WHERE b.owner_id = ? OR m.user_id IS NOT NULL
		ORDER BY b.id`, actor.UserID, actor.UserID, actor.UserID)
	if err != nil {
		return nil, storageErr("list", "board", 0, err)
	}
	defer rows.Close()

	boards := []Board{}
	for rows.Next() {
		var role string
		b, err := scanBoard(rows, &role)
		if err != nil {
			return nil, storageErr("list", "board", 0, err)
		}
		b.Role = Role(role)
		boards = append(boards, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list", "board", 0, err)
	}
	return boards, nil
}

func (s *DataService) GetBoard(ctx context.Context, actor Actor, boardID int64) (*Board, error) {
	role, err := s.authorize(ctx, s.conn, actor, boardID, RoleViewer)
	if err != nil {
		return nil, err
	}
	b, err := loadBoard(ctx, s.conn, boardID)
	if err != nil {
		return nil, err
	}
	b.Role = role
	return b, nil
}

func (s *DataService) UpdateBoard(ctx context.Context, actor Actor, boardID int64, patch BoardPatch) (*Board, error) {
	var before, after *Board
	err := s.WithTx(ctx, func(tx *Tx) error {
		role, err := s.authorize(ctx, tx, actor, boardID, RoleAdmin)
		if err != nil {
			return err
		}
		before, err = loadBoard(ctx, tx, boardID)
		if err != nil {
			return err
		}
		updated := *before
		if patch.Name != nil {
			name := strings.TrimSpace(*patch.Name)
			if name == "" {
				return invalid("update", "board", boardID, "board name must not be blank")
			}
			updated.Name = name
		}
		if patch.Description != nil {
			updated.Description = *patch.Description
		}
		if patch.BackgroundColor != nil {
			updated.BackgroundColor = strings.TrimSpace(*patch.BackgroundColor)
		}
		if patch.SprintStart != nil {
			updated.SprintStart = patch.SprintStart
		}
		if patch.SprintEnd != nil {
			updated.SprintEnd = patch.SprintEnd
		}
		if !validSprintRange(updated.SprintStart, updated.SprintEnd) {
			return invalid("update", "board", boardID, "sprint_start must not be after sprint_end")
		}
		updated.UpdatedAt = s.now()
		if _, err := tx.ExecContext(ctx, `UPDATE boards SET name = ?, description = ?, background_color = ?,
			sprint_start = ?, sprint_end = ?, updated_at = ? WHERE id = ?`,
			updated.Name, updated.Description, updated.BackgroundColor,
			nullableDate(updated.SprintStart), nullableDate(updated.SprintEnd), updated.UpdatedAt, boardID,
		); err != nil {
			return storageErr("update", "board", boardID, err)
		}
		updated.Role = role
		after = &updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(actor, boardID, "update", "board", boardID, before, after)
	return after, nil
}

// DeleteBoard removes the board and, through cascades, everything on it.
// Only the owner may do this.
func (s *DataService) DeleteBoard(ctx context.Context, actor Actor, boardID int64) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		if _, err := s.authorize(ctx, tx, actor, boardID, RoleOwner); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM boards WHERE id = ?", boardID); err != nil {
			return storageErr("delete", "board", boardID, err)
		}
		return nil
	})
}
