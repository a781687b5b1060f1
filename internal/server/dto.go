package server

import (
	"taskdesk/internal/domain"
	"taskdesk/internal/engine"
)

// Request payloads

type RegisterRequest struct {
	Email     string `json:"email" format:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Password  string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password"`
}

type CreateTaskRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty" enum:"TO_DO,IN_PROGRESS,REVIEW,DONE,CANCELLED"`
	Priority    *string `json:"priority,omitempty" enum:"LOW,MEDIUM,HIGH"`
	DueDate     *string `json:"due_date,omitempty" format:"date-time"`
	AssignedTo  string  `json:"assigned_to" format:"email"`
}

type CreateOwnTaskRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty" enum:"TO_DO,IN_PROGRESS,REVIEW,DONE,CANCELLED"`
	Priority    *string `json:"priority,omitempty" enum:"LOW,MEDIUM,HIGH"`
	DueDate     *string `json:"due_date,omitempty" format:"date-time"`
}

type UpdateTaskRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty" enum:"TO_DO,IN_PROGRESS,REVIEW,DONE,CANCELLED"`
	Priority    *string `json:"priority,omitempty" enum:"LOW,MEDIUM,HIGH"`
	DueDate     *string `json:"due_date,omitempty" format:"date-time"`
}

type CreateUserRequest struct {
	Email     string `json:"email" format:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Role      string `json:"role" enum:"ADMIN,MANAGER,MEMBER"`
	Password  string `json:"password,omitempty"`
}

type UpdateUserRequest struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Role      *string `json:"role,omitempty" enum:"ADMIN,MANAGER,MEMBER"`
	Password  *string `json:"password,omitempty"`
}

// Response payloads

type UserResponse struct {
	Email     string `json:"email" format:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Role      string `json:"role" enum:"ADMIN,MANAGER,MEMBER"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type TaskResponse struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Status      string  `json:"status" enum:"TO_DO,IN_PROGRESS,REVIEW,DONE,CANCELLED"`
	Priority    string  `json:"priority" enum:"LOW,MEDIUM,HIGH"`
	DueDate     *string `json:"due_date,omitempty" format:"date-time"`
	AssignedTo  string  `json:"assigned_to" format:"email"`
	CreatedBy   string  `json:"created_by" format:"email"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorEmail string `json:"actor_email"`
	Payload    string `json:"payload_json"`
}

type paginatedTasks struct {
	Items      []TaskResponse `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type paginatedUsers struct {
	Items      []UserResponse `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor int64           `json:"next_cursor,omitempty"`
}

func userResponse(u domain.User) UserResponse {
	return UserResponse{
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func authResponse(res engine.AuthResult) AuthResponse {
	return AuthResponse{Token: res.Token, User: userResponse(res.User)}
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		Priority:    t.Priority,
		DueDate:     t.DueDate,
		AssignedTo:  t.AssignedTo,
		CreatedBy:   t.CreatedBy,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func mapTasks(items []domain.Task) []TaskResponse {
	res := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		res = append(res, taskResponse(t))
	}
	return res
}

func mapUsers(items []domain.User) []UserResponse {
	res := make([]UserResponse, 0, len(items))
	for _, u := range items {
		res = append(res, userResponse(u))
	}
	return res
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorEmail: e.ActorEmail,
		Payload:    e.Payload,
	}
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
