package database

import (
	"context"
	"database/sql"
	"errors"
)

// authorize resolves the actor's role on a board and checks it against min.
// Non-members get NotFound so board existence is not disclosed.
func (s *DataService) authorize(ctx context.Context, q querier, actor Actor, boardID int64, min Role) (Role, error) {
	var ownerID int64
	err := q.QueryRowContext(ctx, "SELECT owner_id FROM boards WHERE id = ?", boardID).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", notFound("authorize", "board", boardID)
	}
	if err != nil {
		return "", storageErr("authorize", "board", boardID, err)
	}

	var role Role
	if ownerID == actor.UserID {
		role = RoleOwner
		// boards created before memberships existed have no owner row
		if _, err := q.ExecContext(ctx, `INSERT INTO board_members (board_id, user_id, role, joined_at)
			VALUES (?, ?, ?, ?) ON CONFLICT (board_id, user_id) DO NOTHING`,
			boardID, actor.UserID, RoleOwner, s.now()); err != nil {
			return "", storageErr("authorize", "board", boardID, err)
		}
	} else {
		err := q.QueryRowContext(ctx,
			"SELECT role FROM board_members WHERE board_id = ? AND user_id = ?",
			boardID, actor.UserID,
		).Scan(&role)
		if errors.Is(err, sql.ErrNoRows) {
			return "", notFound("authorize", "board", boardID)
		}
		if err != nil {
			return "", storageErr("authorize", "board", boardID, err)
		}
	}

	if !role.AtLeast(min) {
		return role, denied("authorize", "board", boardID, "%s role required", min)
	}
	return role, nil
}

const memberColumns = "id, board_id, user_id, role, joined_at"

func scanMember(r rowScanner) (*Member, error) {
	var m Member
	if err := r.Scan(&m.ID, &m.BoardID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *DataService) ListMembers(ctx context.Context, actor Actor, boardID int64) ([]Member, error) {
	if _, err := s.authorize(ctx, s.conn, actor, boardID, RoleViewer); err != nil {
		return nil, err
	}
	rows, err := s.conn.QueryContext(ctx,
		"SELECT "+memberColumns+" FROM board_members WHERE board_id = ? ORDER BY joined_at, id", boardID)
	if err != nil {
		return nil, storageErr("list", "member", boardID, err)
	}
	defer rows.Close()

	members := []Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, storageErr("list", "member", boardID, err)
		}
		members = append(members, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list", "member", boardID, err)
	}
	return members, nil
}

func getMember(ctx context.Context, q querier, boardID, userID int64) (*Member, error) {
	m, err := scanMember(q.QueryRowContext(ctx,
		"SELECT "+memberColumns+" FROM board_members WHERE board_id = ? AND user_id = ?", boardID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("get", "member", userID)
	}
	if err != nil {
		return nil, storageErr("get", "member", userID, err)
	}
	return m, nil
}

// AddMember grants a user a role on the board.
func (s *DataService) AddMember(ctx context.Context, actor Actor, boardID, userID int64, role string) (*Member, error) {
	r, ok := ParseRole(role)
	if !ok {
		return nil, invalid("add", "member", userID, "role must be one of admin, member, viewer")
	}
	if userID <= 0 {
		return nil, invalid("add", "member", userID, "user_id is required")
	}

	var member *Member
	err := s.WithTx(ctx, func(tx *Tx) error {
		if _, err := s.authorize(ctx, tx, actor, boardID, RoleAdmin); err != nil {
			return err
		}
		var exists int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM board_members WHERE board_id = ? AND user_id = ?", boardID, userID,
		).Scan(&exists); err != nil {
			return storageErr("add", "member", userID, err)
		}
		if exists > 0 {
			return invalid("add", "member", userID, "user is already a member of this board")
		}
		var ownerID int64
		if err := tx.QueryRowContext(ctx, "SELECT owner_id FROM boards WHERE id = ?", boardID).Scan(&ownerID); err != nil {
			return storageErr("add", "member", userID, err)
		}
		if ownerID == userID {
			return invalid("add", "member", userID, "user owns this board")
		}

		var err error
		member, err = scanMember(tx.QueryRowContext(ctx,
			`INSERT INTO board_members (board_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)
			RETURNING `+memberColumns,
			boardID, userID, r, s.now()))
		if err != nil {
			return storageErr("add", "member", userID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(actor, boardID, "add", "member", member.UserID, nil, member)
	return member, nil
}

// UpdateMemberRole changes a member's role. The owner's row is fixed.
func (s *DataService) UpdateMemberRole(ctx context.Context, actor Actor, boardID, userID int64, role string) (*Member, error) {
	r, ok := ParseRole(role)
	if !ok {
		return nil, invalid("update", "member", userID, "role must be one of admin, member, viewer")
	}

	var before, after *Member
	err := s.WithTx(ctx, func(tx *Tx) error {
		if _, err := s.authorize(ctx, tx, actor, boardID, RoleAdmin); err != nil {
			return err
		}
		var err error
		before, err = getMember(ctx, tx, boardID, userID)
		if err != nil {
			return err
		}
		if before.Role == RoleOwner {
			return invalid("update", "member", userID, "the board owner's role cannot be changed")
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE board_members SET role = ? WHERE board_id = ? AND user_id = ?", r, boardID, userID,
		); err != nil {
			return storageErr("update", "member", userID, err)
		}
		updated := *before
		updated.Role = r
		after = &updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(actor, boardID, "update", "member", userID, before, after)
	return after, nil
}

func (s *DataService) RemoveMember(ctx context.Context, actor Actor, boardID, userID int64) error {
	var before *Member
	err := s.WithTx(ctx, func(tx *Tx) error {
		if _, err := s.authorize(ctx, tx, actor, boardID, RoleAdmin); err != nil {
			return err
		}
		var err error
		before, err = getMember(ctx, tx, boardID, userID)
		if err != nil {
			return err
		}
		if before.Role == RoleOwner {
			return invalid("remove", "member", userID, "the board owner cannot be removed")
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM board_members WHERE board_id = ? AND user_id = ?", boardID, userID,
		); err != nil {
			return storageErr("remove", "member", userID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.record(actor, boardID, "remove", "member", userID, before, nil)
	return nil
}
