package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddDependencyRejections(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTestService(t, ctx)
	b := testBoard(t, ctx, svc)
	other := testBoard(t, ctx, svc)

	a := createTask(t, ctx, svc, b.ID, "a", "todo")
	c := createTask(t, ctx, svc, b.ID, "c", "todo")
	foreign := createTask(t, ctx, svc, other.ID, "foreign", "todo")

	dep, err := svc.AddDependency(ctx, member, b.ID, a.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, dep.BlockerTaskID)
	assert.Equal(t, c.ID, dep.BlockedTaskID)

	tests := []struct {
		name    string
		blocker int64
		blocked int64
	}{
		{"self", a.ID, a.ID},
		{"duplicate", a.ID, c.ID},
		{"reverse", c.ID, a.ID},
		{"cross board", a.ID, foreign.ID},
		{"missing task", a.ID, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddDependency(ctx, member, b.ID, tt.blocker, tt.blocked)
			require.ErrorIs(t, err, ErrValidation)
		})
	}

	deps, err := svc.ListDependencies(ctx, viewer, b.ID)
	require.NoError(t, err)
	assert.Len(t, deps, 1)
}

// Only direct reverse edges are rejected; a three task loop is accepted.
func TestLongerCyclesAreNotDetected(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTestService(t, ctx)
	b := testBoard(t, ctx, svc)

	a := createTask(t, ctx, svc, b.ID, "a", "todo")
	c := createTask(t, ctx, svc, b.ID, "b", "todo")
	d := createTask(t, ctx, svc, b.ID, "c", "todo")

	_, err := svc.AddDependency(ctx, member, b.ID, a.ID, c.ID)
	require.NoError(t, err)
	_, err = svc.AddDependency(ctx, member, b.ID, c.ID, d.ID)
	require.NoError(t, err)
	_, err = svc.AddDependency(ctx, member, b.ID, d.ID, a.ID)
	require.NoError(t, err)
}

func TestTaskDependenciesAndRemoval(t *testing.T) {
	ctx := context.Background()
	svc, rec := setupTestService(t, ctx)
	b := testBoard(t, ctx, svc)

	a := createTask(t, ctx, svc, b.ID, "a", "todo")
	c := createTask(t, ctx, svc, b.ID, "c", "todo")
	d := createTask(t, ctx, svc, b.ID, "d", "todo")

	first, err := svc.AddDependency(ctx, member, b.ID, a.ID, c.ID)
	require.NoError(t, err)
	_, err = svc.AddDependency(ctx, member, b.ID, c.ID, d.ID)
	require.NoError(t, err)

	view, err := svc.ListTaskDependencies(ctx, owner, b.ID, c.ID)
	require.NoError(t, err)
	require.Len(t, view.BlockedBy, 1)
	require.Len(t, view.Blocking, 1)
	assert.Equal(t, a.ID, view.BlockedBy[0].BlockerTaskID)
	assert.Equal(t, d.ID, view.Blocking[0].BlockedTaskID)

	require.NoError(t, svc.RemoveDependency(ctx, member, b.ID, first.ID))
	assert.Equal(t, "dependency:delete", rec.actions()[len(rec.actions())-1])
	err = svc.RemoveDependency(ctx, member, b.ID, first.ID)
	require.ErrorIs(t, err, ErrNotFound)

	// deleting a task drops its edges
	require.NoError(t, svc.DeleteTask(ctx, member, b.ID, d.ID))
	deps, err := svc.ListDependencies(ctx, owner, b.ID)
	require.NoError(t, err)
	assert.Empty(t, deps)
}

func TestAddDependencyRequiresMember(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTestService(t, ctx)
	b := testBoard(t, ctx, svc)
	a := createTask(t, ctx, svc, b.ID, "a", "todo")
	c := createTask(t, ctx, svc, b.ID, "c", "todo")

	_, err := svc.AddDependency(ctx, viewer, b.ID, a.ID, c.ID)
	require.ErrorIs(t, err, ErrPermission)
}
