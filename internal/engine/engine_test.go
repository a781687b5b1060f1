package engine_test

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"taskdesk/internal/auth"
	"taskdesk/internal/config"
	"taskdesk/internal/db"
	"taskdesk/internal/domain"
	"taskdesk/internal/engine"
	"taskdesk/internal/migrate"
	"taskdesk/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

var (
	admin   = auth.Identity{Email: "alice@example.com", Role: auth.RoleAdmin}
	manager = auth.Identity{Email: "bob@example.com", Role: auth.RoleManager}
	member  = auth.Identity{Email: "carol@example.com", Role: auth.RoleMember}
	member2 = auth.Identity{Email: "dana@example.com", Role: auth.RoleMember}
)

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	secret := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	codec, err := auth.NewTokenCodec(secret, time.Hour)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	cfg := &config.Config{}
	cfg.Auth.JWTSecret = secret
	cfg.Admin.Email = "alice@example.com"
	cfg.Admin.Password = "admin"
	eng := engine.New(conn, cfg, codec)
	eng.Now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	env := testEnv{Engine: eng, Ctx: ctx}
	for _, id := range []auth.Identity{admin, manager, member, member2} {
		env.seedUser(t, id)
	}
	return env
}

func (env testEnv) seedUser(t *testing.T, id auth.Identity) {
	t.Helper()
	hash, err := auth.HashPassword("pw-" + id.Email)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	now := env.Engine.Now().UTC().Format(time.RFC3339)
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	err = env.Engine.Repo.InsertUser(env.Ctx, tx, domain.User{
		Email:        id.Email,
		Role:         id.Role,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		t.Fatalf("seed user %s: %v", id.Email, err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func mustCreateSelf(t *testing.T, env testEnv, id auth.Identity, title string) domain.Task {
	t.Helper()
	task, err := env.Engine.CreateTaskForSelf(env.Ctx, id, engine.TaskCreateOptions{Title: title})
	if err != nil {
		t.Fatalf("create self task: %v", err)
	}
	return task
}

func mustCreateFor(t *testing.T, env testEnv, id auth.Identity, assignee, title string) domain.Task {
	t.Helper()
	task, err := env.Engine.CreateTaskForOther(env.Ctx, id, engine.TaskCreateOptions{Title: title, AssignedTo: assignee})
	if err != nil {
		t.Fatalf("create task for %s: %v", assignee, err)
	}
	return task
}

func isForbidden(err error) bool {
	var fe engine.ForbiddenError
	return errors.As(err, &fe)
}

func TestRegisterAlwaysMember(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.Register(env.Ctx, engine.RegisterOptions{
		Email:    "Eve@Example.com",
		Password: "secret",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if res.User.Role != auth.RoleMember {
		t.Fatalf("expected MEMBER, got %s", res.User.Role)
	}
	if res.User.Email != "eve@example.com" {
		t.Fatalf("expected lowercased email, got %s", res.User.Email)
	}
	id, err := env.Engine.Codec.Verify(res.Token)
	if err != nil {
		t.Fatalf("verify issued token: %v", err)
	}
	if id.Email != "eve@example.com" || id.Role != auth.RoleMember {
		t.Fatalf("unexpected identity %+v", id)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Register(env.Ctx, engine.RegisterOptions{Email: member.Email, Password: "x"}); !errors.Is(err, repo.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.Login(env.Ctx, member.Email, "pw-"+member.Email)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Token == "" || res.User.Email != member.Email {
		t.Fatalf("unexpected result %+v", res)
	}
	// wrong password and unknown user read the same
	_, err = env.Engine.Login(env.Ctx, member.Email, "nope")
	if err == nil || !strings.Contains(err.Error(), "invalid email or password") {
		t.Fatalf("expected credential error, got %v", err)
	}
	_, err2 := env.Engine.Login(env.Ctx, "ghost@example.com", "nope")
	if err2 == nil || err2.Error() != err.Error() {
		t.Fatalf("expected identical error, got %v / %v", err, err2)
	}
}

func TestMemberSeesOnlyAssignedTasks(t *testing.T) {
	env := newTestEnv(t)
	mustCreateSelf(t, env, member, "mine")
	mustCreateSelf(t, env, member2, "dana personal")
	mustCreateFor(t, env, manager, member.Email, "assigned by bob")

	tasks, err := env.Engine.ListTasks(env.Ctx, member, engine.TaskListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	for _, task := range tasks {
		if task.AssignedTo != member.Email {
			t.Fatalf("member sees foreign task %+v", task)
		}
	}
}

func TestManagerDoesNotSeeForeignPersonalTasks(t *testing.T) {
	env := newTestEnv(t)
	mustCreateSelf(t, env, member2, "dana personal")
	ownPersonal := mustCreateSelf(t, env, manager, "bob personal")
	delegated := mustCreateFor(t, env, manager, member.Email, "delegated")

	tasks, err := env.Engine.ListTasks(env.Ctx, manager, engine.TaskListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	ids := map[int64]bool{}
	for _, task := range tasks {
		ids[task.ID] = true
	}
	if len(tasks) != 2 || !ids[ownPersonal.ID] || !ids[delegated.ID] {
		t.Fatalf("unexpected visible set %v", ids)
	}

	// the hidden task also reads as missing by id
	hidden := mustCreateSelf(t, env, member2, "another personal")
	if _, err := env.Engine.GetTask(env.Ctx, manager, hidden.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := env.Engine.GetTask(env.Ctx, admin, hidden.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("admin: expected ErrNotFound, got %v", err)
	}
	if _, err := env.Engine.GetTask(env.Ctx, member2, hidden.ID); err != nil {
		t.Fatalf("owner should see it: %v", err)
	}
}

func TestListTaskFilters(t *testing.T) {
	env := newTestEnv(t)
	task := mustCreateFor(t, env, manager, member.Email, "filtered")
	st := domain.StatusInProgress
	if _, err := env.Engine.UpdateTask(env.Ctx, manager, task.ID, engine.TaskPatch{Status: &st}); err != nil {
		t.Fatalf("update: %v", err)
	}
	mustCreateFor(t, env, manager, member.Email, "still todo")

	tasks, err := env.Engine.ListTasks(env.Ctx, manager, engine.TaskListOptions{Status: domain.StatusInProgress})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != task.ID {
		t.Fatalf("unexpected filter result %+v", tasks)
	}
	if _, err := env.Engine.ListTasks(env.Ctx, manager, engine.TaskListOptions{Status: "BOGUS"}); err == nil {
		t.Fatal("expected invalid status error")
	}
}

func TestMemberUpdateOnlyStatus(t *testing.T) {
	env := newTestEnv(t)
	task := mustCreateFor(t, env, manager, member.Email, "work item")

	newTitle := "hijacked"
	st := domain.StatusDone
	updated, err := env.Engine.UpdateTask(env.Ctx, member, task.ID, engine.TaskPatch{Title: &newTitle, Status: &st})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != domain.StatusDone {
		t.Fatalf("status not applied: %s", updated.Status)
	}
	if updated.Title != "work item" {
		t.Fatalf("member changed title: %s", updated.Title)
	}

	// status is mandatory for members
	if _, err := env.Engine.UpdateTask(env.Ctx, member, task.ID, engine.TaskPatch{Title: &newTitle}); err == nil || !strings.Contains(err.Error(), "required") {
		t.Fatalf("expected status required, got %v", err)
	}

	// foreign task is off limits
	other := mustCreateFor(t, env, manager, member2.Email, "dana work")
	if _, err := env.Engine.UpdateTask(env.Ctx, member, other.ID, engine.TaskPatch{Status: &st}); !isForbidden(err) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestManagerPartialPatch(t *testing.T) {
	env := newTestEnv(t)
	task := mustCreateFor(t, env, manager, member.Email, "original")

	desc := "new description"
	pr := domain.PriorityHigh
	updated, err := env.Engine.UpdateTask(env.Ctx, manager, task.ID, engine.TaskPatch{Description: &desc, Priority: &pr})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "original" || updated.Description != desc || updated.Priority != domain.PriorityHigh || updated.Status != task.Status {
		t.Fatalf("patch applied wrong fields: %+v", updated)
	}

	due := "2026-02-01T00:00:00Z"
	updated, err = env.Engine.UpdateTask(env.Ctx, manager, task.ID, engine.TaskPatch{DueDate: &due})
	if err != nil {
		t.Fatalf("set due date: %v", err)
	}
	if updated.DueDate == nil || *updated.DueDate != due {
		t.Fatalf("due date not set: %+v", updated.DueDate)
	}
	clear := ""
	updated, err = env.Engine.UpdateTask(env.Ctx, manager, task.ID, engine.TaskPatch{DueDate: &clear})
	if err != nil {
		t.Fatalf("clear due date: %v", err)
	}
	if updated.DueDate != nil {
		t.Fatalf("due date not cleared: %+v", updated.DueDate)
	}
}

func TestManagerCannotTouchForeignPersonalTask(t *testing.T) {
	env := newTestEnv(t)
	personal := mustCreateSelf(t, env, member2, "dana personal")

	st := domain.StatusCancelled
	if _, err := env.Engine.UpdateTask(env.Ctx, manager, personal.ID, engine.TaskPatch{Status: &st}); !isForbidden(err) {
		t.Fatalf("update: expected forbidden, got %v", err)
	}
	if err := env.Engine.DeleteTask(env.Ctx, manager, personal.ID); !isForbidden(err) {
		t.Fatalf("delete: expected forbidden, got %v", err)
	}
	if _, err := env.Engine.UpdateTask(env.Ctx, admin, personal.ID, engine.TaskPatch{Status: &st}); !isForbidden(err) {
		t.Fatalf("admin update: expected forbidden, got %v", err)
	}
	// the owner can still work on it
	if _, err := env.Engine.UpdateTask(env.Ctx, member2, personal.ID, engine.TaskPatch{Status: &st}); err != nil {
		t.Fatalf("owner update: %v", err)
	}
}

func TestMemberDeleteRules(t *testing.T) {
	env := newTestEnv(t)
	personal := mustCreateSelf(t, env, member, "my own")
	assigned := mustCreateFor(t, env, manager, member.Email, "assigned")

	// assigned by a manager: not self-managed, member may not delete
	if err := env.Engine.DeleteTask(env.Ctx, member, assigned.ID); !isForbidden(err) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if err := env.Engine.DeleteTask(env.Ctx, member, personal.ID); err != nil {
		t.Fatalf("delete own personal: %v", err)
	}
	// deleted tasks read as missing
	if _, err := env.Engine.GetTask(env.Ctx, member, personal.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := env.Engine.DeleteTask(env.Ctx, member, personal.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("re-delete: expected ErrNotFound, got %v", err)
	}
	tasks, err := env.Engine.ListTasks(env.Ctx, member, engine.TaskListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != assigned.ID {
		t.Fatalf("deleted task still visible: %+v", tasks)
	}
}

func TestManagerDeleteDelegatedTask(t *testing.T) {
	env := newTestEnv(t)
	delegated := mustCreateFor(t, env, manager, member.Email, "delegated")
	if err := env.Engine.DeleteTask(env.Ctx, manager, delegated.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := env.Engine.DeleteTask(env.Ctx, manager, delegated.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("re-delete: expected ErrNotFound, got %v", err)
	}
}

func TestCreateForOtherGuards(t *testing.T) {
	env := newTestEnv(t)
	// members cannot delegate
	_, err := env.Engine.CreateTaskForOther(env.Ctx, member, engine.TaskCreateOptions{Title: "x", AssignedTo: member2.Email})
	if !isForbidden(err) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	// missing role reads as a bad request, not forbidden
	_, err = env.Engine.CreateTaskForOther(env.Ctx, auth.Identity{Email: "bob@example.com"}, engine.TaskCreateOptions{Title: "x", AssignedTo: member.Email})
	if err == nil || isForbidden(err) || !strings.Contains(err.Error(), "required") {
		t.Fatalf("expected role required, got %v", err)
	}
	// unknown assignee
	_, err = env.Engine.CreateTaskForOther(env.Ctx, manager, engine.TaskCreateOptions{Title: "x", AssignedTo: "ghost@example.com"})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	// happy path records the delegation
	task, err := env.Engine.CreateTaskForOther(env.Ctx, admin, engine.TaskCreateOptions{Title: "x", AssignedTo: member.Email})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.AssignedTo != member.Email || task.CreatedBy != admin.Email {
		t.Fatalf("unexpected task %+v", task)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateTaskForSelf(env.Ctx, member, engine.TaskCreateOptions{}); err == nil {
		t.Fatal("expected title required")
	}
	if _, err := env.Engine.CreateTaskForSelf(env.Ctx, member, engine.TaskCreateOptions{Title: "x", Status: "NOPE"}); err == nil {
		t.Fatal("expected invalid status")
	}
	task := mustCreateSelf(t, env, member, "defaults")
	if task.Status != domain.StatusToDo || task.Priority != domain.PriorityMedium {
		t.Fatalf("unexpected defaults %+v", task)
	}
}

func TestUserAdminGuards(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.ListUsers(env.Ctx, manager, engine.UserListOptions{}); !isForbidden(err) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := env.Engine.CreateUser(env.Ctx, member, engine.UserCreateOptions{Email: "x@example.com", Role: auth.RoleMember}); !isForbidden(err) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	u, err := env.Engine.CreateUser(env.Ctx, admin, engine.UserCreateOptions{Email: "frank@example.com", Role: auth.RoleManager})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.Role != auth.RoleManager {
		t.Fatalf("unexpected role %s", u.Role)
	}
	// provisioned accounts carry the default password
	if _, err := env.Engine.Login(env.Ctx, "frank@example.com", auth.DefaultPassword); err != nil {
		t.Fatalf("login with default password: %v", err)
	}

	users, err := env.Engine.ListUsers(env.Ctx, admin, engine.UserListOptions{Role: auth.RoleManager})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected bob and frank, got %d", len(users))
	}
}

func TestUserUpdateAndDelete(t *testing.T) {
	env := newTestEnv(t)
	role := auth.RoleManager
	u, err := env.Engine.UpdateUser(env.Ctx, admin, member.Email, engine.UserPatch{Role: &role})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if u.Role != auth.RoleManager {
		t.Fatalf("role not applied: %s", u.Role)
	}

	if err := env.Engine.DeleteUser(env.Ctx, admin, member2.Email); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.GetUser(env.Ctx, admin, member2.Email); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	// deleting again is a conflict, not a miss
	if err := env.Engine.DeleteUser(env.Ctx, admin, member2.Email); !errors.Is(err, repo.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if err := env.Engine.DeleteUser(env.Ctx, admin, "ghost@example.com"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("unknown user: expected ErrNotFound, got %v", err)
	}
	// deleted users can no longer log in
	if _, err := env.Engine.Login(env.Ctx, member2.Email, "pw-"+member2.Email); err == nil {
		t.Fatal("expected login failure for deleted user")
	}
}

func TestEventsAuditTrail(t *testing.T) {
	env := newTestEnv(t)
	task := mustCreateSelf(t, env, member, "audited")
	st := domain.StatusDone
	if _, err := env.Engine.UpdateTask(env.Ctx, member, task.ID, engine.TaskPatch{Status: &st}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := env.Engine.DeleteTask(env.Ctx, member, task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := env.Engine.ListEvents(env.Ctx, member, engine.EventListOptions{}); !isForbidden(err) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	events, err := env.Engine.ListEvents(env.Ctx, admin, engine.EventListOptions{EntityKind: "task"})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 task events, got %d", len(events))
	}
	// newest first
	if events[0].Type != "task.deleted" || events[2].Type != "task.created" {
		t.Fatalf("unexpected order: %s .. %s", events[0].Type, events[2].Type)
	}
	for _, ev := range events {
		if ev.ActorEmail != member.Email {
			t.Fatalf("unexpected actor %s", ev.ActorEmail)
		}
	}
}
