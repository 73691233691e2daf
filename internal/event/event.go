// Package event defines the typed domain events the pipeline consumes.
//
// Events are produced by business logic elsewhere in ZenaManage (task
// handlers, contract workflow, invitations) and handed to the pipeline
// exactly once. They are transient: nothing here is persisted.
package event

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Known event keys. The pipeline is rule-driven, so an event with no
// matching rule produces nothing, but unknown keys are rejected outright
// to catch producer typos early.
const (
	TaskCreated       = "task.created"
	TaskAssigned      = "task.assigned"
	TaskCompleted     = "task.completed"
	TaskOverdue       = "task.overdue"
	ChangeRequested   = "contract.change_requested"
	ContractSigned    = "contract.signed"
	MemberInvited     = "project.member_invited"
	InvitationExpired = "invitation.expired"
	ProjectArchived   = "project.archived"
)

// projectScoped marks the keys that only make sense inside a project.
// Project-scoped events must carry a project id.
var projectScoped = map[string]bool{
	TaskCreated:       true,
	TaskAssigned:      true,
	TaskCompleted:     true,
	TaskOverdue:       true,
	ChangeRequested:   true,
	ContractSigned:    true,
	MemberInvited:     true,
	ProjectArchived:   true,
	InvitationExpired: false,
}

// Validation failures. Malformed events are dropped with a warning and
// never retried; these sentinels classify why.
var (
	ErrMissingKey     = errors.New("event key is empty")
	ErrUnknownKey     = errors.New("unknown event key")
	ErrMissingActor   = errors.New("event actor_id is empty")
	ErrMissingProject = errors.New("project-scoped event missing project_id")
)

// Event is one domain occurrence: who did what, where, and to which entity.
type Event struct {
	Key           string         `json:"event_key"`
	ActorID       uuid.UUID      `json:"actor_id"`
	ProjectID     *uuid.UUID     `json:"project_id,omitempty"`
	EntityID      uuid.UUID      `json:"entity_id"`
	ChangedFields []string       `json:"changed_fields,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
}

// Known reports whether key names a registered event kind.
func Known(key string) bool {
	_, ok := projectScoped[key]
	return ok
}

// ProjectScoped reports whether key requires a project id.
func ProjectScoped(key string) bool {
	return projectScoped[key]
}

// Validate checks the event for the fields the evaluator depends on.
func (e *Event) Validate() error {
	if e.Key == "" {
		return ErrMissingKey
	}
	if !Known(e.Key) {
		return fmt.Errorf("%w: %s", ErrUnknownKey, e.Key)
	}
	if e.ActorID == uuid.Nil {
		return ErrMissingActor
	}
	if ProjectScoped(e.Key) && e.ProjectID == nil {
		return fmt.Errorf("%w: %s", ErrMissingProject, e.Key)
	}
	return nil
}

// String returns a short form for logs.
func (e *Event) String() string {
	if e.ProjectID != nil {
		return fmt.Sprintf("%s (project %s)", e.Key, e.ProjectID)
	}
	return e.Key
}
