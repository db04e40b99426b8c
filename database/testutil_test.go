package database

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	ownerID  int64 = 1
	memberID int64 = 2
	viewerID int64 = 3
	outsider int64 = 99
)

var (
	owner  = Actor{UserID: ownerID}
	member = Actor{UserID: memberID}
	viewer = Actor{UserID: viewerID}
)

// captureRecorder keeps every event in memory.
type captureRecorder struct {
	mu     sync.Mutex
	events []ActivityEvent
}

func (r *captureRecorder) Record(ev ActivityEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *captureRecorder) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.EntityType + ":" + ev.Action
	}
	return out
}

func (r *captureRecorder) last() ActivityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func setupTestService(t *testing.T, ctx context.Context) (*DataService, *captureRecorder) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db")
	db, err := InitDB(ctx, SQLite(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("db close failed: %v", err)
		}
	})
	svc := NewDataService(db, SQLite())
	rec := &captureRecorder{}
	svc.SetRecorder(rec)
	return svc, rec
}

// testBoard creates a board owned by owner with the given lanes, a member
// and a viewer.
func testBoard(t *testing.T, ctx context.Context, svc *DataService, lanes ...string) *Board {
	t.Helper()
	b, err := svc.CreateBoard(ctx, owner, BoardInput{Name: "Test board", Statuses: lanes})
	require.NoError(t, err)
	_, err = svc.AddMember(ctx, owner, b.ID, memberID, "member")
	require.NoError(t, err)
	_, err = svc.AddMember(ctx, owner, b.ID, viewerID, "viewer")
	require.NoError(t, err)
	return b
}

func createTask(t *testing.T, ctx context.Context, svc *DataService, boardID int64, title, lane string) *Task {
	t.Helper()
	task, err := svc.CreateTask(ctx, member, boardID, TaskInput{Title: title, Status: lane})
	require.NoError(t, err)
	return task
}

// laneTitles lists the titles of a lane in position order.
func laneTitles(t *testing.T, ctx context.Context, svc *DataService, boardID int64, lane string) []string {
	t.Helper()
	tasks, err := svc.ListTasks(ctx, owner, boardID, TaskFilter{Status: lane})
	require.NoError(t, err)
	titles := make([]string, len(tasks))
	for i, task := range tasks {
		require.Equal(t, i, task.Position, "lane %s is not dense at %q", lane, task.Title)
		titles[i] = task.Title
	}
	return titles
}

// requireDense checks that every lane of the board holds positions 0..n-1.
func requireDense(t *testing.T, ctx context.Context, svc *DataService, boardID int64) {
	t.Helper()
	tasks, err := svc.ListTasks(ctx, owner, boardID, TaskFilter{})
	require.NoError(t, err)
	byLane := make(map[string][]int)
	for _, task := range tasks {
		byLane[task.Status] = append(byLane[task.Status], task.Position)
	}
	for lane, positions := range byLane {
		sort.Ints(positions)
		for i, p := range positions {
			require.Equal(t, i, p, "lane %s positions %v", lane, positions)
		}
	}
}

func ptr[T any](v T) *T { return &v }
