package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

// GetUserDefaults returns the user's saved lane and priority names. A user
// who never saved any gets empty lists.
func (s *DataService) GetUserDefaults(ctx context.Context, userID int64) (*UserDefaults, error) {
	return loadUserDefaults(ctx, s.conn, userID)
}

func loadUserDefaults(ctx context.Context, q querier, userID int64) (*UserDefaults, error) {
	d := &UserDefaults{UserID: userID, Statuses: []string{}, Priorities: []string{}}
	var statuses, priorities string
	err := q.QueryRowContext(ctx,
		"SELECT statuses, priorities, updated_at FROM user_defaults WHERE user_id = ?", userID,
	).Scan(&statuses, &priorities, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return d, nil
	}
	if err != nil {
		return nil, storageErr("get", "defaults", userID, err)
	}
	if err := json.Unmarshal([]byte(statuses), &d.Statuses); err != nil {
		return nil, storageErr("get", "defaults", userID, err)
	}
	if err := json.Unmarshal([]byte(priorities), &d.Priorities); err != nil {
		return nil, storageErr("get", "defaults", userID, err)
	}
	d.Statuses = SanitizeNames(d.Statuses)
	d.Priorities = SanitizeNames(d.Priorities)
	return d, nil
}

// SetUserDefaults sanitizes and stores the user's default names.
func (s *DataService) SetUserDefaults(ctx context.Context, userID int64, statuses, priorities []string) (*UserDefaults, error) {
	d := &UserDefaults{
		UserID:     userID,
		Statuses:   SanitizeNames(statuses),
		Priorities: SanitizeNames(priorities),
		UpdatedAt:  s.now(),
	}
	statusJSON, err := json.Marshal(d.Statuses)
	if err != nil {
		return nil, storageErr("set", "defaults", userID, err)
	}
	priorityJSON, err := json.Marshal(d.Priorities)
	if err != nil {
		return nil, storageErr("set", "defaults", userID, err)
	}

	_, err = s.conn.ExecContext(ctx, `INSERT INTO user_defaults (user_id, statuses, priorities, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			statuses = excluded.statuses,
			priorities = excluded.priorities,
			updated_at = excluded.updated_at`,
		userID, string(statusJSON), string(priorityJSON), d.UpdatedAt)
	if err != nil {
		return nil, storageErr("set", "defaults", userID, err)
	}
	return d, nil
}
