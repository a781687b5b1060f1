package engine

import (
	"context"
	"errors"

	"taskdesk/internal/auth"
	"taskdesk/internal/domain"
	"taskdesk/internal/events"
	"taskdesk/internal/repo"
)

// automanaged reports whether a task is self-managed: its creator
// assigned it to themselves.
func automanaged(t domain.Task) bool {
	return t.AssignedTo == t.CreatedBy
}

// foreignAutomanaged reports whether a task is someone else's personal
// task. Managers and admins may neither see nor touch those.
func foreignAutomanaged(t domain.Task, viewer string) bool {
	return automanaged(t) && t.AssignedTo != viewer
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	Title       string
	Description string
	Status      string
	Priority    string
	DueDate     *string
	AssignedTo  string
}

func (e Engine) validateTaskCreate(opts *TaskCreateOptions) error {
	if opts.Title == "" {
		return errors.New("title is required")
	}
	if opts.Status == "" {
		opts.Status = domain.StatusToDo
	}
	if !domain.ValidStatus(opts.Status) {
		return errors.New("invalid status")
	}
	if opts.Priority == "" {
		opts.Priority = domain.PriorityMedium
	}
	if !domain.ValidPriority(opts.Priority) {
		return errors.New("invalid priority")
	}
	return nil
}

func (e Engine) insertTask(ctx context.Context, id auth.Identity, t domain.Task) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	taskID, err := e.Repo.InsertTask(ctx, tx, t)
	if err != nil {
		return domain.Task{}, err
	}
	t.ID = taskID
	if err := e.Events.Append(ctx, tx, "task.created", "task", taskKey(t.ID), id.Email, events.EventPayload{
		"title":       t.Title,
		"assigned_to": t.AssignedTo,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// CreateTaskForSelf creates a task assigned to the caller. Every role
// may do this.
func (e Engine) CreateTaskForSelf(ctx context.Context, id auth.Identity, opts TaskCreateOptions) (domain.Task, error) {
	if err := e.validateTaskCreate(&opts); err != nil {
		return domain.Task{}, err
	}
	now := e.nowRFC3339()
	t := domain.Task{
		Title:       opts.Title,
		Description: opts.Description,
		Status:      opts.Status,
		Priority:    opts.Priority,
		DueDate:     opts.DueDate,
		AssignedTo:  id.Email,
		CreatedBy:   id.Email,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return e.insertTask(ctx, id, t)
}

// CreateTaskForOther creates a task assigned to another user. Only
// delegating roles may do this, and the assignee must exist.
func (e Engine) CreateTaskForOther(ctx context.Context, id auth.Identity, opts TaskCreateOptions) (domain.Task, error) {
	if !auth.ValidRole(id.Role) {
		return domain.Task{}, errors.New("role is required")
	}
	if !id.CanDelegate() {
		return domain.Task{}, ForbiddenError{Reason: "role cannot assign tasks to other users"}
	}
	if opts.AssignedTo == "" {
		return domain.Task{}, errors.New("assigned_to is required")
	}
	if err := e.validateTaskCreate(&opts); err != nil {
		return domain.Task{}, err
	}
	if opts.AssignedTo != id.Email {
		if _, err := e.Repo.GetUserByEmail(ctx, opts.AssignedTo); err != nil {
			return domain.Task{}, err
		}
	}
	now := e.nowRFC3339()
	t := domain.Task{
		Title:       opts.Title,
		Description: opts.Description,
		Status:      opts.Status,
		Priority:    opts.Priority,
		DueDate:     opts.DueDate,
		AssignedTo:  opts.AssignedTo,
		CreatedBy:   id.Email,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return e.insertTask(ctx, id, t)
}

// TaskListOptions are optional listing filters.
type TaskListOptions struct {
	Status          string
	Priority        string
	Limit           int
	CursorCreatedAt string
	CursorID        int64
}

// ListTasks returns the tasks the caller may see. Members see only
// tasks assigned to them; wider roles see everything except other
// users' self-managed tasks.
func (e Engine) ListTasks(ctx context.Context, id auth.Identity, opts TaskListOptions) ([]domain.Task, error) {
	if opts.Status != "" && !domain.ValidStatus(opts.Status) {
		return nil, errors.New("invalid status")
	}
	if opts.Priority != "" && !domain.ValidPriority(opts.Priority) {
		return nil, errors.New("invalid priority")
	}
	f := repo.TaskFilters{
		Status:          opts.Status,
		Priority:        opts.Priority,
		Limit:           opts.Limit,
		CursorCreatedAt: opts.CursorCreatedAt,
		CursorID:        opts.CursorID,
	}
	if id.CanSeeAll() {
		f.ExcludeForeignSelfManaged = true
		f.Viewer = id.Email
	} else {
		f.AssignedTo = id.Email
	}
	return e.Repo.ListTasks(ctx, f)
}

// GetTask returns a single task if the caller may see it. Tasks outside
// the caller's visibility read as missing rather than forbidden.
func (e Engine) GetTask(ctx context.Context, id auth.Identity, taskID int64) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if !e.canSee(id, t) {
		return domain.Task{}, repo.ErrNotFound
	}
	return t, nil
}

func (e Engine) canSee(id auth.Identity, t domain.Task) bool {
	if id.CanSeeAll() {
		return !foreignAutomanaged(t, id.Email)
	}
	return t.AssignedTo == id.Email
}

// TaskPatch carries partial updates; nil fields are left untouched.
type TaskPatch struct {
	Title       *string
	Description *string
	Status      *string
	Priority    *string
	DueDate     *string
}

// UpdateTask applies a partial update under the caller's role rules.
// Members may only move the status of their own tasks; other submitted
// fields are ignored. Wider roles may patch any field of any visible
// task except other users' self-managed ones. Nothing is written when a
// check fails.
func (e Engine) UpdateTask(ctx context.Context, id auth.Identity, taskID int64, patch TaskPatch) (domain.Task, error) {
	if patch.Status != nil && !domain.ValidStatus(*patch.Status) {
		return domain.Task{}, errors.New("invalid status")
	}
	if patch.Priority != nil && !domain.ValidPriority(*patch.Priority) {
		return domain.Task{}, errors.New("invalid priority")
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return domain.Task{}, err
	}

	if !id.CanSeeAll() {
		if t.AssignedTo != id.Email {
			return domain.Task{}, ForbiddenError{Reason: "task is not assigned to you"}
		}
		if patch.Status == nil {
			return domain.Task{}, errors.New("status is required")
		}
		t.Status = *patch.Status
	} else {
		if foreignAutomanaged(t, id.Email) {
			return domain.Task{}, ForbiddenError{Reason: "cannot modify another user's personal task"}
		}
		if patch.Title != nil {
			if *patch.Title == "" {
				return domain.Task{}, errors.New("title is required")
			}
			t.Title = *patch.Title
		}
		if patch.Description != nil {
			t.Description = *patch.Description
		}
		if patch.Status != nil {
			t.Status = *patch.Status
		}
		if patch.Priority != nil {
			t.Priority = *patch.Priority
		}
		if patch.DueDate != nil {
			if *patch.DueDate == "" {
				t.DueDate = nil
			} else {
				t.DueDate = patch.DueDate
			}
		}
	}

	t.UpdatedAt = e.nowRFC3339()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, "task.updated", "task", taskKey(t.ID), id.Email, events.EventPayload{
		"status": t.Status,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// DeleteTask soft-deletes a task. Members may only delete their own
// self-managed tasks; wider roles may delete anything except other
// users' self-managed tasks. Deleting a deleted task reads as missing.
func (e Engine) DeleteTask(ctx context.Context, id auth.Identity, taskID int64) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return err
	}

	if !id.CanSeeAll() {
		if !(t.AssignedTo == id.Email && automanaged(t)) {
			return ForbiddenError{Reason: "members may only delete their own personal tasks"}
		}
	} else if foreignAutomanaged(t, id.Email) {
		return ForbiddenError{Reason: "cannot delete another user's personal task"}
	}

	if err := e.Repo.SoftDeleteTask(ctx, tx, taskID, e.nowRFC3339()); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "task.deleted", "task", taskKey(taskID), id.Email, events.EventPayload{}); err != nil {
		return err
	}
	return tx.Commit()
}
