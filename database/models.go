package database

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Role is a board membership level.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

func (r Role) rank() int {
	switch r {
	case RoleOwner:
		return 4
	case RoleAdmin:
		return 3
	case RoleMember:
		return 2
	case RoleViewer:
		return 1
	}
	return 0
}

// AtLeast reports whether r grants everything min grants.
func (r Role) AtLeast(min Role) bool {
	return r.rank() >= min.rank()
}

// ParseRole accepts the roles that can be granted to a member. Ownership is
// not grantable.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleMember, RoleViewer:
		return r, true
	}
	return "", false
}

// Actor is the authenticated user performing an operation.
type Actor struct {
	UserID int64
}

// Date is a calendar day without time of day.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts YYYY-MM-DD or a full RFC 3339 timestamp.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Date{t}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return NewDate(t.Year(), t.Month(), t.Day()), nil
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*d = NewDate(v.Year(), v.Month(), v.Day())
		return nil
	case string:
		parsed, err := parseStoredDate(v)
		*d = parsed
		return err
	case []byte:
		parsed, err := parseStoredDate(string(v))
		*d = parsed
		return err
	}
	return fmt.Errorf("cannot scan %T into Date", src)
}

func parseStoredDate(s string) (Date, error) {
	if len(s) >= len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	return ParseDate(s)
}

func (d Date) Value() (driver.Value, error) {
	return d.String(), nil
}

// Board is a tenant-scoped Kanban board.
type Board struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	OwnerID         int64     `json:"owner_id"`
	SprintStart     *Date     `json:"sprint_start"`
	SprintEnd       *Date     `json:"sprint_end"`
	BackgroundColor string    `json:"background_color"`
	Role            Role      `json:"role,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type BoardInput struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	BackgroundColor string   `json:"background_color"`
	SprintStart     *Date    `json:"sprint_start"`
	SprintEnd       *Date    `json:"sprint_end"`
	Statuses        []string `json:"statuses"`
	Priorities      []string `json:"priorities"`
}

// BoardPatch holds optional board changes; nil fields are left alone.
type BoardPatch struct {
	Name            *string `json:"name"`
	Description     *string `json:"description"`
	BackgroundColor *string `json:"background_color"`
	SprintStart     *Date   `json:"sprint_start"`
	SprintEnd       *Date   `json:"sprint_end"`
}

// TaxonomyEntry is one lane or priority level of a board.
type TaxonomyEntry struct {
	ID       int64  `json:"id"`
	BoardID  int64  `json:"board_id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
	Color    string `json:"color"`
}

type EntryInput struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

type EntryPatch struct {
	Name     *string `json:"name"`
	Position *int    `json:"position"`
	Color    *string `json:"color"`
}

// Task is a card. Status names its lane and Priority its priority level.
type Task struct {
	ID          int64     `json:"id"`
	BoardID     int64     `json:"board_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Priority    string    `json:"priority"`
	Position    int       `json:"position"`
	AssignedTo  *int64    `json:"assigned_to"`
	CreatedBy   int64     `json:"created_by"`
	DueDate     *Date     `json:"due_date"`
	Estimate    *int      `json:"estimate"`
	EffortUsed  *int      `json:"effort_used"`
	SprintID    *int64    `json:"sprint_id"`
	Labels      []string  `json:"labels"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type TaskInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	Priority    string   `json:"priority"`
	AssignedTo  *int64   `json:"assigned_to"`
	DueDate     *Date    `json:"due_date"`
	Estimate    *int     `json:"estimate"`
	EffortUsed  *int     `json:"effort_used"`
	SprintID    *int64   `json:"sprint_id"`
	Labels      []string `json:"labels"`
}

// Nullable is a patch field that tells an absent key apart from an explicit
// null. Set is true whenever the key was present; Value is nil for null.
type Nullable[T any] struct {
	Set   bool
	Value *T
}

// Some returns a present, non-null field.
func Some[T any](v T) Nullable[T] {
	return Nullable[T]{Set: true, Value: &v}
}

// Null returns a present field that clears the stored value.
func Null[T any]() Nullable[T] {
	return Nullable[T]{Set: true}
}

func (n *Nullable[T]) UnmarshalJSON(b []byte) error {
	n.Set = true
	if string(bytes.TrimSpace(b)) == "null" {
		n.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

func (n Nullable[T]) MarshalJSON() ([]byte, error) {
	if n.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*n.Value)
}

// TaskPatch holds optional task changes. Nullable fields clear the stored
// value when sent as null; an AssignedTo or SprintID of 0 clears as well.
type TaskPatch struct {
	Title       *string         `json:"title"`
	Description *string         `json:"description"`
	Status      *string         `json:"status"`
	Priority    *string         `json:"priority"`
	Position    *int            `json:"position"`
	AssignedTo  Nullable[int64] `json:"assigned_to"`
	DueDate     Nullable[Date]  `json:"due_date"`
	Estimate    Nullable[int]   `json:"estimate"`
	EffortUsed  Nullable[int]   `json:"effort_used"`
	SprintID    Nullable[int64] `json:"sprint_id"`
	Labels      *[]string       `json:"labels"`
}

// Move places a task at an index of a lane. to_lane is accepted as an alias
// of to_status.
type Move struct {
	TaskID     *int64  `json:"task_id"`
	ToStatus   *string `json:"to_status"`
	ToLane     *string `json:"to_lane"`
	ToPosition *int    `json:"to_position"`
}

func (m Move) lane() *string {
	if m.ToStatus != nil {
		return m.ToStatus
	}
	return m.ToLane
}

type Member struct {
	ID       int64     `json:"id"`
	BoardID  int64     `json:"board_id"`
	UserID   int64     `json:"user_id"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// Dependency records that the blocker task must finish before the blocked one.
type Dependency struct {
	ID            int64     `json:"id"`
	BoardID       int64     `json:"board_id"`
	BlockerTaskID int64     `json:"blocker_task_id"`
	BlockedTaskID int64     `json:"blocked_task_id"`
	CreatedAt     time.Time `json:"created_at"`
}

type TaskDependencies struct {
	TaskID    int64        `json:"task_id"`
	BlockedBy []Dependency `json:"blocked_by"`
	Blocking  []Dependency `json:"blocking"`
}

type Sprint struct {
	ID        int64      `json:"id"`
	BoardID   int64      `json:"board_id"`
	Name      string     `json:"name"`
	Goal      string     `json:"goal"`
	StartDate Date       `json:"start_date"`
	EndDate   Date       `json:"end_date"`
	IsActive  bool       `json:"is_active"`
	ClosedAt  *time.Time `json:"closed_at"`
	CreatedAt time.Time  `json:"created_at"`
}

type SprintInput struct {
	Name      string `json:"name"`
	Goal      string `json:"goal"`
	StartDate *Date  `json:"start_date"`
	EndDate   *Date  `json:"end_date"`
	IsActive  bool   `json:"is_active"`
}

type SprintPatch struct {
	Name      *string `json:"name"`
	Goal      *string `json:"goal"`
	StartDate *Date   `json:"start_date"`
	EndDate   *Date   `json:"end_date"`
}

// ActivityEvent is one append-only audit record.
type ActivityEvent struct {
	ID         int64           `json:"id"`
	BoardID    int64           `json:"board_id"`
	UserID     int64           `json:"user_id"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   int64           `json:"entity_id"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

type Burnup struct {
	BoardID        int64  `json:"board_id"`
	SprintID       *int64 `json:"sprint_id,omitempty"`
	DoneLane       string `json:"done_lane"`
	TaskCount      int    `json:"task_count"`
	ScopeTotal     int    `json:"scope_total"`
	CompletedTotal int    `json:"completed_total"`
}

type CFDLane struct {
	Lane     string `json:"lane"`
	Position int    `json:"position"`
	Count    int    `json:"count"`
}

type CFD struct {
	BoardID     int64     `json:"board_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Lanes       []CFDLane `json:"lanes"`
}

// UserDefaults are the lane and priority names seeded into a user's new boards.
type UserDefaults struct {
	UserID     int64     `json:"user_id"`
	Statuses   []string  `json:"statuses"`
	Priorities []string  `json:"priorities"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}
