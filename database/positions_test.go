package database

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTaskDefaultsToTodoAtEnd(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTestService(t, ctx)
	b := testBoard(t, ctx, svc)

	first, err := svc.CreateTask(ctx, member, b.ID, TaskInput{Title: "first"})
	require.NoError(t, err)
	assert.Equal(t, "todo", first.Status)
	assert.Equal(t, "medium", first.Priority)
	assert.Equal(t, 0, first.Position)

	second := createTask(t, ctx, svc, b.ID, "second", "")
	assert.Equal(t, 1, second.Position)
}

func TestMoveWithinLane(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTestService(t, ctx)
	b := testBoard(t, ctx, svc)

	createTask(t, ctx, svc, b.ID, "a", "todo")
	createTask(t, ctx, svc, b.ID, "b", "todo")
	c := createTask(t, ctx, svc, b.ID, "c", "todo")

	_, err := svc.ReorderTasks(ctx, member, b.ID, []Move{{TaskID: &c.ID, ToStatus: ptr("todo"), ToPosition: ptr(0)}})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, laneTitles(t, ctx, svc, b.ID, "todo"))
}

func TestMoveAcrossLanesDensifiesSource(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTestService(t, ctx)
	b := testBoard(t, ctx, svc, "todo", "doing")

	createTask(t, ctx, svc, b.ID, "t0", "todo")
	createTask(t, ctx, svc, b.ID, "t1", "todo")
	createTask(t, ctx, svc, b.ID, "d0", "doing")
	d1 := createTask(t, ctx, svc, b.ID, "d1", "doing")

	moved, err := svc.ReorderTasks(ctx, member, b.ID, []Move{{TaskID: &d1.ID, ToStatus: ptr("todo"), ToPosition: ptr(0)}})
	require.NoError(t, err)
	require.Len(t, moved, 1)
	assert.Equal(t, "todo", moved[0].Status)
	assert.Equal(t, 0, moved[0].Position)

	assert.Equal(t, []string{"d1", "t0", "t1"}, laneTitles(t, ctx, svc, b.ID, "todo"))
	assert.Equal(t, []string{"d0"}, laneTitles(t, ctx, svc, b.ID, "doing"))
}

func TestMoveFromMiddleClosesGap(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTestService(t, ctx)
	b := testBoard(t, ctx, svc, "todo", "doing")

	createTask(t, ctx, svc, b.ID, "a", "todo")
	mid := createTask(t, ctx, svc, b.ID, "b", "todo")
	createTask(t, ctx, svc, b.ID, "c", "todo")

	_, err := svc.ReorderTasks(ctx, member, b.ID, []Move{{TaskID: &mid.ID, ToLane: ptr("doing"), ToPosition: ptr(5)}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, laneTitles(t, ctx, svc, b.ID, "todo"))
	assert.Equal(t, []string{"b"}, laneTitles(t, ctx, svc, b.ID, "doing"))
}

func TestNoOpMoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTestService(t, ctx)
	b := testBoard(t, ctx, svc)

	createTask(t, ctx, svc, b.ID, "a", "todo")
	mid := createTask(t, ctx, svc, b.ID, "b", "todo")
	createTask(t, ctx, svc, b.ID, "c", "todo")

	for i := 0; i < 2; i++ {
		_, err := svc.ReorderTasks(ctx, member, b.ID, []Move{{TaskID: &mid.ID, ToStatus: ptr("todo"), ToPosition: ptr(1)}})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, laneTitles(t, ctx, svc, b.ID, "todo"))
	}
}

func TestMoveClampsPosition(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTestService(t, ctx)
	b := testBoard(t, ctx, svc)

	a := createTask(t, ctx, svc, b.ID, "a", "todo")
	createTask(t, ctx, svc, b.ID, "b", "todo")

	_, err := svc.ReorderTasks(ctx, member, b.ID, []Move{{TaskID: &a.ID, ToStatus: ptr("todo"), ToPosition: ptr(100)}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, laneTitles(t, ctx, svc, b.ID, "todo"))

	_, err = svc.ReorderTasks(ctx, member, b.ID, []Move{{TaskID: &a.ID, ToStatus: ptr("todo"), ToPosition: ptr(-3)}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, laneTitles(t, ctx, svc, b.ID, "todo"))
}

func TestMoveToUnknownLaneCreatesIt(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTestService(t, ctx)
	b := testBoard(t, ctx, svc, "todo", "done")

	a := createTask(t, ctx, svc, b.ID, "a", "todo")
	_, err := svc.ReorderTasks(ctx, member, b.ID, []Move{{TaskID: &a.ID, ToStatus: ptr("blocked"), ToPosition: ptr(0)}})
	require.NoError(t, err)

	lanes, err := svc.ListLanes(ctx, owner, b.ID)
	require.NoError(t, err)
	require.Len(t, lanes, 3)
	assert.Equal(t, "blocked", lanes[2].Name)
	assert.Equal(t, 2, lanes[2].Position)
}

func TestReorderValidatesWholeBatchFirst(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTestService(t, ctx)
	b := testBoard(t, ctx, svc, "todo", "doing")

	a := createTask(t, ctx, svc, b.ID, "a", "todo")
	createTask(t, ctx, svc, b.ID, "b", "todo")

	_, err := svc.ReorderTasks(ctx, member, b.ID, []Move{
		{TaskID: &a.ID, ToStatus: ptr("doing"), ToPosition: ptr(0)},
		{TaskID: &a.ID, ToStatus: ptr("todo")},
	})
	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, []string{"a", "b"}, laneTitles(t, ctx, svc, b.ID, "todo"))

	_, err = svc.ReorderTasks(ctx, member, b.ID, nil)
	require.ErrorIs(t, err, ErrValidation)
}

func TestReorderUnknownTaskRollsBack(t *testing.T) {
	ctx := context.Background()
	svc, rec := setupTestService(t, ctx)
	b := testBoard(t, ctx, svc, "todo", "doing")

	a := createTask(t, ctx, svc, b.ID, "a", "todo")
	createTask(t, ctx, svc, b.ID, "b", "todo")
	recorded := len(rec.actions())

	_, err := svc.ReorderTasks(ctx, member, b.ID, []Move{
		{TaskID: &a.ID, ToStatus: ptr("doing"), ToPosition: ptr(0)},
		{TaskID: ptr(int64(4242)), ToStatus: ptr("todo"), ToPosition: ptr(0)},
	})
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{"a", "b"}, laneTitles(t, ctx, svc, b.ID, "todo"))
	assert.Empty(t, laneTitles(t, ctx, svc, b.ID, "doing"))
	assert.Len(t, rec.actions(), recorded, "failed batch must not be audited")
}

func TestReorderRecordsOneEventPerBatch(t *testing.T) {
	ctx := context.Background()
	svc, rec := setupTestService(t, ctx)
	b := testBoard(t, ctx, svc, "todo", "doing")

	a := createTask(t, ctx, svc, b.ID, "a", "todo")
	c := createTask(t, ctx, svc, b.ID, "c", "todo")
	recorded := len(rec.actions())

	_, err := svc.ReorderTasks(ctx, member, b.ID, []Move{
		{TaskID: &a.ID, ToStatus: ptr("doing"), ToPosition: ptr(0)},
		{TaskID: &c.ID, ToStatus: ptr("doing"), ToPosition: ptr(0)},
	})
	require.NoError(t, err)
	require.Len(t, rec.actions(), recorded+1)
	ev := rec.last()
	assert.Equal(t, "reorder", ev.Action)
	assert.Equal(t, memberID, ev.UserID)
	assert.JSONEq(t, fmt.Sprintf(`[{"task_id":%d,"status":"todo","position":0},{"task_id":%d,"status":"todo","position":0}]`, a.ID, c.ID), string(ev.Before))
	assert.JSONEq(t, fmt.Sprintf(`[{"task_id":%d,"status":"doing","position":1},{"task_id":%d,"status":"doing","position":0}]`, a.ID, c.ID), string(ev.After))
}

func TestReorderRequiresMemberRole(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTestService(t, ctx)
	b := testBoard(t, ctx, svc)
	a := createTask(t, ctx, svc, b.ID, "a", "todo")

	_, err := svc.ReorderTasks(ctx, viewer, b.ID, []Move{{TaskID: &a.ID, ToStatus: ptr("done"), ToPosition: ptr(0)}})
	require.ErrorIs(t, err, ErrPermission)

	_, err = svc.ReorderTasks(ctx, Actor{UserID: outsider}, b.ID, []Move{{TaskID: &a.ID, ToStatus: ptr("done"), ToPosition: ptr(0)}})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateTaskStatusMovesToEnd(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTestService(t, ctx)
	b := testBoard(t, ctx, svc, "todo", "done")

	a := createTask(t, ctx, svc, b.ID, "a", "todo")
	createTask(t, ctx, svc, b.ID, "b", "todo")
	createTask(t, ctx, svc, b.ID, "x", "done")

	updated, err := svc.UpdateTask(ctx, member, b.ID, a.ID, TaskPatch{Status: ptr("done"), Title: ptr("a2")})
	require.NoError(t, err)
	assert.Equal(t, "done", updated.Status)
	assert.Equal(t, 1, updated.Position)
	assert.Equal(t, []string{"x", "a2"}, laneTitles(t, ctx, svc, b.ID, "done"))
	assert.Equal(t, []string{"b"}, laneTitles(t, ctx, svc, b.ID, "todo"))

	updated, err = svc.UpdateTask(ctx, member, b.ID, a.ID, TaskPatch{Position: ptr(0)})
	require.NoError(t, err)
	assert.Equal(t, 0, updated.Position)
	assert.Equal(t, []string{"a2", "x"}, laneTitles(t, ctx, svc, b.ID, "done"))
}

func TestDeleteTaskDensifiesLane(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTestService(t, ctx)
	b := testBoard(t, ctx, svc)

	createTask(t, ctx, svc, b.ID, "a", "todo")
	mid := createTask(t, ctx, svc, b.ID, "b", "todo")
	createTask(t, ctx, svc, b.ID, "c", "todo")

	require.NoError(t, svc.DeleteTask(ctx, member, b.ID, mid.ID))
	assert.Equal(t, []string{"a", "c"}, laneTitles(t, ctx, svc, b.ID, "todo"))

	_, err := svc.GetTask(ctx, owner, b.ID, mid.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBulkUpdateMovesTasksToEndOfLane(t *testing.T) {
	ctx := context.Background()
	svc, rec := setupTestService(t, ctx)
	b := testBoard(t, ctx, svc, "todo", "review")

	a := createTask(t, ctx, svc, b.ID, "a", "todo")
	createTask(t, ctx, svc, b.ID, "b", "todo")
	c := createTask(t, ctx, svc, b.ID, "c", "todo")
	createTask(t, ctx, svc, b.ID, "r", "review")

	tasks, err := svc.BulkUpdateTasks(ctx, member, b.ID, []int64{a.ID, c.ID}, TaskPatch{
		Status:   ptr("review"),
		Priority: ptr("high"),
	})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	for _, task := range tasks {
		assert.Equal(t, "high", task.Priority)
	}
	assert.Equal(t, []string{"r", "a", "c"}, laneTitles(t, ctx, svc, b.ID, "review"))
	assert.Equal(t, []string{"b"}, laneTitles(t, ctx, svc, b.ID, "todo"))
	assert.Equal(t, "bulk_update", rec.last().Action)

	_, err = svc.BulkUpdateTasks(ctx, member, b.ID, []int64{a.ID}, TaskPatch{Position: ptr(0)})
	require.ErrorIs(t, err, ErrValidation)
}

// Positions stay dense whatever sequence of creates, moves and deletes runs.
func TestDensityUnderRandomOperations(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTestService(t, ctx)
	lanes := []string{"todo", "doing", "review", "done"}
	b := testBoard(t, ctx, svc, lanes...)

	rng := rand.New(rand.NewSource(7))
	var ids []int64
	for i := 0; i < 12; i++ {
		task := createTask(t, ctx, svc, b.ID, fmt.Sprintf("seed-%d", i), lanes[rng.Intn(len(lanes))])
		ids = append(ids, task.ID)
	}

	for step := 0; step < 60; step++ {
		switch op := rng.Intn(10); {
		case op < 6 && len(ids) > 0:
			id := ids[rng.Intn(len(ids))]
			_, err := svc.ReorderTasks(ctx, member, b.ID, []Move{{
				TaskID:     &id,
				ToStatus:   ptr(lanes[rng.Intn(len(lanes))]),
				ToPosition: ptr(rng.Intn(8) - 1),
			}})
			require.NoError(t, err)
		case op < 8:
			task := createTask(t, ctx, svc, b.ID, fmt.Sprintf("task-%d", step), lanes[rng.Intn(len(lanes))])
			ids = append(ids, task.ID)
		case len(ids) > 0:
			i := rng.Intn(len(ids))
			require.NoError(t, svc.DeleteTask(ctx, member, b.ID, ids[i]))
			ids = append(ids[:i], ids[i+1:]...)
		}
		requireDense(t, ctx, svc, b.ID)
	}
}

func TestListTasksFollowsLaneOrder(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTestService(t, ctx)
	b := testBoard(t, ctx, svc, "todo", "doing", "blocked")

	createTask(t, ctx, svc, b.ID, "x0", "blocked")
	createTask(t, ctx, svc, b.ID, "d0", "doing")
	createTask(t, ctx, svc, b.ID, "t0", "todo")
	createTask(t, ctx, svc, b.ID, "d1", "doing")

	tasks, err := svc.ListTasks(ctx, viewer, b.ID, TaskFilter{})
	require.NoError(t, err)
	titles := make([]string, len(tasks))
	for i, task := range tasks {
		titles[i] = task.Title
	}
	assert.Equal(t, []string{"t0", "d0", "d1", "x0"}, titles)
}
