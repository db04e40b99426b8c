package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const (
	DefaultLane     = "todo"
	DefaultPriority = "medium"
)

var (
	StarterLanes      = []string{"todo", "in_progress", "review", "done"}
	StarterPriorities = []string{"low", "medium", "high", "critical"}
)

// taxonomy describes one per-board ordered name set that tasks reference by
// name in column.
type taxonomy struct {
	table    string
	column   string
	resource string
	fallback string
	lanes    bool
}

var (
	laneTaxonomy = taxonomy{
		table:    "board_statuses",
		column:   "status",
		resource: "status",
		fallback: DefaultLane,
		lanes:    true,
	}
	priorityTaxonomy = taxonomy{
		table:    "board_priorities",
		column:   "priority",
		resource: "priority",
		fallback: DefaultPriority,
	}
)

func (t taxonomy) selectColumns() string {
	return "SELECT id, board_id, name, position, color FROM " + t.table
}

func scanEntry(r rowScanner) (*TaxonomyEntry, error) {
	var e TaxonomyEntry
	if err := r.Scan(&e.ID, &e.BoardID, &e.Name, &e.Position, &e.Color); err != nil {
		return nil, err
	}
	return &e, nil
}

func findEntryByName(ctx context.Context, q querier, t taxonomy, boardID int64, name string) (*TaxonomyEntry, error) {
	e, err := scanEntry(q.QueryRowContext(ctx,
		t.selectColumns()+" WHERE board_id = ? AND name = ?", boardID, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("find", t.resource, boardID, err)
	}
	return e, nil
}

func getEntry(ctx context.Context, q querier, t taxonomy, boardID, id int64) (*TaxonomyEntry, error) {
	e, err := scanEntry(q.QueryRowContext(ctx,
		t.selectColumns()+" WHERE board_id = ? AND id = ?", boardID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("get", t.resource, id)
	}
	if err != nil {
		return nil, storageErr("get", t.resource, id, err)
	}
	return e, nil
}

func listEntries(ctx context.Context, q querier, t taxonomy, boardID int64) ([]TaxonomyEntry, error) {
	rows, err := q.QueryContext(ctx, t.selectColumns()+" WHERE board_id = ? ORDER BY position, id", boardID)
	if err != nil {
		return nil, storageErr("list", t.resource, boardID, err)
	}
	defer rows.Close()

	entries := []TaxonomyEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, storageErr("list", t.resource, boardID, err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list", t.resource, boardID, err)
	}
	return entries, nil
}

func insertEntry(ctx context.Context, q querier, t taxonomy, boardID int64, name, color string) (*TaxonomyEntry, error) {
	var next int
	if err := q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COALESCE(MAX(position), -1) + 1 FROM %s WHERE board_id = ?", t.table), boardID,
	).Scan(&next); err != nil {
		return nil, storageErr("create", t.resource, boardID, err)
	}
	e, err := scanEntry(q.QueryRowContext(ctx,
		fmt.Sprintf("INSERT INTO %s (board_id, name, position, color) VALUES (?, ?, ?, ?) RETURNING id, board_id, name, position, color", t.table),
		boardID, name, next, color))
	if err != nil {
		return nil, storageErr("create", t.resource, boardID, err)
	}
	return e, nil
}

// resolveOrCreate returns the entry called name, appending it at the end of
// the board's set when it does not exist yet.
func resolveOrCreate(ctx context.Context, q querier, t taxonomy, boardID int64, name string) (*TaxonomyEntry, error) {
	e, err := findEntryByName(ctx, q, t, boardID, name)
	if err != nil || e != nil {
		return e, err
	}
	// a concurrent writer may register the same name first
	if _, err := q.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %[1]s (board_id, name, position, color)
		VALUES (?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM %[1]s WHERE board_id = ?), '')
		ON CONFLICT (board_id, name) DO NOTHING`, t.table),
		boardID, name, boardID,
	); err != nil {
		return nil, storageErr("create", t.resource, boardID, err)
	}
	e, err = findEntryByName(ctx, q, t, boardID, name)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, storageErr("create", t.resource, boardID, fmt.Errorf("%s %q vanished after insert", t.resource, name))
	}
	return e, nil
}

// seedEntries creates names in order at positions 0..n-1 on an empty board.
func seedEntries(ctx context.Context, q querier, t taxonomy, boardID int64, names []string) error {
	for i, name := range names {
		if _, err := q.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (board_id, name, position, color) VALUES (?, ?, ?, '')", t.table),
			boardID, name, i,
		); err != nil {
			return storageErr("seed", t.resource, boardID, err)
		}
	}
	return nil
}

func (s *DataService) listTaxonomy(ctx context.Context, actor Actor, t taxonomy, boardID int64) ([]TaxonomyEntry, error) {
	if _, err := s.authorize(ctx, s.conn, actor, boardID, RoleViewer); err != nil {
		return nil, err
	}
	return listEntries(ctx, s.conn, t, boardID)
}

func (s *DataService) resolveTaxonomy(ctx context.Context, t taxonomy, boardID int64, name string) (*TaxonomyEntry, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("resolve", t.resource, boardID, "%s name is required", t.resource)
	}
	var e *TaxonomyEntry
	err := s.WithTx(ctx, func(tx *Tx) error {
		var err error
		e, err = resolveOrCreate(ctx, tx, t, boardID, name)
		return err
	})
	return e, err
}

func (s *DataService) createTaxonomy(ctx context.Context, actor Actor, t taxonomy, boardID int64, in EntryInput) (*TaxonomyEntry, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("create", t.resource, boardID, "%s name is required", t.resource)
	}

	var created *TaxonomyEntry
	err := s.WithTx(ctx, func(tx *Tx) error {
		if _, err := s.authorize(ctx, tx, actor, boardID, RoleAdmin); err != nil {
			return err
		}
		existing, err := findEntryByName(ctx, tx, t, boardID, name)
		if err != nil {
			return err
		}
		if existing != nil {
			return invalid("create", t.resource, boardID, "%s %q already exists", t.resource, name)
		}
		created, err = insertEntry(ctx, tx, t, boardID, name, strings.TrimSpace(in.Color))
		return err
	})
	if err != nil {
		return nil, err
	}

	s.record(actor, boardID, "create", t.resource, created.ID, nil, created)
	return created, nil
}

// updateTaxonomy applies name, position and color changes. A rename is
// propagated to every task that referenced the old name.
func (s *DataService) updateTaxonomy(ctx context.Context, actor Actor, t taxonomy, boardID, id int64, patch EntryPatch) (*TaxonomyEntry, error) {
	var before, after *TaxonomyEntry
	err := s.WithTx(ctx, func(tx *Tx) error {
		if _, err := s.authorize(ctx, tx, actor, boardID, RoleAdmin); err != nil {
			return err
		}
		var err error
		before, err = getEntry(ctx, tx, t, boardID, id)
		if err != nil {
			return err
		}
		updated := *before

		if patch.Name != nil {
			name := strings.TrimSpace(*patch.Name)
			if name == "" {
				return invalid("update", t.resource, id, "%s name is required", t.resource)
			}
			if name != before.Name {
				if t.lanes {
					if err := s.lockLanes(ctx, tx, boardID, before.Name, name); err != nil {
						return err
					}
				}
				clash, err := findEntryByName(ctx, tx, t, boardID, name)
				if err != nil {
					return err
				}
				if clash != nil {
					return invalid("update", t.resource, id, "%s %q already exists", t.resource, name)
				}
				if _, err := tx.ExecContext(ctx,
					fmt.Sprintf("UPDATE board_tasks SET %s = ?, updated_at = ? WHERE board_id = ? AND %s = ?", t.column, t.column),
					name, s.now(), boardID, before.Name,
				); err != nil {
					return storageErr("rename", t.resource, id, err)
				}
				updated.Name = name
			}
		}
		if patch.Position != nil {
			if *patch.Position < 0 {
				return invalid("update", t.resource, id, "position must not be negative")
			}
			updated.Position = *patch.Position
		}
		if patch.Color != nil {
			updated.Color = strings.TrimSpace(*patch.Color)
		}

		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("UPDATE %s SET name = ?, position = ?, color = ? WHERE id = ?", t.table),
			updated.Name, updated.Position, updated.Color, id,
		); err != nil {
			return storageErr("update", t.resource, id, err)
		}
		after = &updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(actor, boardID, "update", t.resource, id, before, after)
	return after, nil
}

// deleteTaxonomy reassigns referencing tasks to the fallback entry and then
// removes the entry. The fallback is the lowest positioned remaining entry,
// or the hard-coded default name when none remain.
func (s *DataService) deleteTaxonomy(ctx context.Context, actor Actor, t taxonomy, boardID, id int64) error {
	var before *TaxonomyEntry
	var fallback string
	err := s.WithTx(ctx, func(tx *Tx) error {
		if _, err := s.authorize(ctx, tx, actor, boardID, RoleAdmin); err != nil {
			return err
		}
		var err error
		before, err = getEntry(ctx, tx, t, boardID, id)
		if err != nil {
			return err
		}

		err = tx.QueryRowContext(ctx,
			fmt.Sprintf("SELECT name FROM %s WHERE board_id = ? AND id <> ? ORDER BY position, id LIMIT 1", t.table),
			boardID, id,
		).Scan(&fallback)
		if errors.Is(err, sql.ErrNoRows) {
			fallback = t.fallback
		} else if err != nil {
			return storageErr("delete", t.resource, id, err)
		}

		var moved int
		if t.lanes {
			moved, err = s.reassignLane(ctx, tx, boardID, before.Name, fallback)
		} else {
			moved, err = s.reassignPriority(ctx, tx, boardID, before.Name, fallback)
		}
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", t.table), id); err != nil {
			return storageErr("delete", t.resource, id, err)
		}

		// tasks must keep pointing at a registered name
		if moved > 0 {
			if _, err := resolveOrCreate(ctx, tx, t, boardID, fallback); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.record(actor, boardID, "delete", t.resource, id, before, map[string]string{"fallback": fallback})
	return nil
}

func (s *DataService) reassignPriority(ctx context.Context, tx *Tx, boardID int64, from, to string) (int, error) {
	res, err := tx.ExecContext(ctx,
		"UPDATE board_tasks SET priority = ?, updated_at = ? WHERE board_id = ? AND priority = ?",
		to, s.now(), boardID, from)
	if err != nil {
		return 0, storageErr("reassign", "priority", boardID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("reassign", "priority", boardID, err)
	}
	return int(n), nil
}

func (s *DataService) ListLanes(ctx context.Context, actor Actor, boardID int64) ([]TaxonomyEntry, error) {
	return s.listTaxonomy(ctx, actor, laneTaxonomy, boardID)
}

// ResolveOrCreateLane returns the lane called name, creating it at the end
// of the board's lanes if needed.
func (s *DataService) ResolveOrCreateLane(ctx context.Context, boardID int64, name string) (*TaxonomyEntry, error) {
	return s.resolveTaxonomy(ctx, laneTaxonomy, boardID, name)
}

func (s *DataService) CreateLane(ctx context.Context, actor Actor, boardID int64, in EntryInput) (*TaxonomyEntry, error) {
	return s.createTaxonomy(ctx, actor, laneTaxonomy, boardID, in)
}

func (s *DataService) UpdateLane(ctx context.Context, actor Actor, boardID, laneID int64, patch EntryPatch) (*TaxonomyEntry, error) {
	return s.updateTaxonomy(ctx, actor, laneTaxonomy, boardID, laneID, patch)
}

func (s *DataService) DeleteLane(ctx context.Context, actor Actor, boardID, laneID int64) error {
	return s.deleteTaxonomy(ctx, actor, laneTaxonomy, boardID, laneID)
}

func (s *DataService) ListPriorities(ctx context.Context, actor Actor, boardID int64) ([]TaxonomyEntry, error) {
	return s.listTaxonomy(ctx, actor, priorityTaxonomy, boardID)
}

func (s *DataService) ResolveOrCreatePriority(ctx context.Context, boardID int64, name string) (*TaxonomyEntry, error) {
	return s.resolveTaxonomy(ctx, priorityTaxonomy, boardID, name)
}

func (s *DataService) CreatePriority(ctx context.Context, actor Actor, boardID int64, in EntryInput) (*TaxonomyEntry, error) {
	return s.createTaxonomy(ctx, actor, priorityTaxonomy, boardID, in)
}

func (s *DataService) UpdatePriority(ctx context.Context, actor Actor, boardID, priorityID int64, patch EntryPatch) (*TaxonomyEntry, error) {
	return s.updateTaxonomy(ctx, actor, priorityTaxonomy, boardID, priorityID, patch)
}

func (s *DataService) DeletePriority(ctx context.Context, actor Actor, boardID, priorityID int64) error {
	return s.deleteTaxonomy(ctx, actor, priorityTaxonomy, boardID, priorityID)
}
