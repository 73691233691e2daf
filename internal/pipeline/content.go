package pipeline

import (
	"fmt"

	"github.com/kha997/zenanotify/internal/db"
	"github.com/kha997/zenanotify/internal/event"
)

// Content is the rendered title/body/priority of a notification.
type Content struct {
	Title    string
	Body     string
	Priority string
	LinkURL  *string
}

// Compose renders notification content for an event from its key and data
// bag. Producers pass display fields ("task_title", "actor_name",
// "project_name") alongside their domain payload; missing fields degrade
// to generic phrasing rather than failing the notification.
func Compose(ev *event.Event) Content {
	task := dataString(ev, "task_title", "a task")
	actor := dataString(ev, "actor_name", "Someone")
	project := dataString(ev, "project_name", "your project")

	var c Content
	c.Priority = db.PriorityNormal

	switch ev.Key {
	case event.TaskCreated:
		c.Title = fmt.Sprintf("New task in %s", project)
		c.Body = fmt.Sprintf("%s created %q in %s.", actor, task, project)

	case event.TaskAssigned:
		c.Title = "Task assigned to you"
		c.Body = fmt.Sprintf("%s assigned %q to you in %s.", actor, task, project)

	case event.TaskCompleted:
		c.Title = "Task completed"
		c.Body = fmt.Sprintf("%s completed %q in %s.", actor, task, project)
		c.Priority = db.PriorityLow

	case event.TaskOverdue:
		c.Title = "Task overdue"
		c.Body = fmt.Sprintf("%q in %s is past its due date.", task, project)
		c.Priority = db.PriorityCritical

	case event.ChangeRequested:
		c.Title = "Change request submitted"
		c.Body = fmt.Sprintf("%s requested a contract change in %s.", actor, project)
		c.Priority = db.PriorityCritical

	case event.ContractSigned:
		c.Title = "Contract signed"
		c.Body = fmt.Sprintf("%s signed the contract in %s.", actor, project)

	case event.MemberInvited:
		c.Title = "New member invited"
		c.Body = fmt.Sprintf("%s invited %s to %s.", actor, dataString(ev, "invitee_email", "a new member"), project)
		c.Priority = db.PriorityLow

	case event.InvitationExpired:
		c.Title = "Invitation expired"
		c.Body = fmt.Sprintf("The invitation for %s expired.", dataString(ev, "invitee_email", "a pending member"))
		c.Priority = db.PriorityLow

	case event.ProjectArchived:
		c.Title = "Project archived"
		c.Body = fmt.Sprintf("%s archived %s.", actor, project)

	default:
		// Unknown keys are rejected by validation; this covers keys added
		// to the registry before a template exists.
		c.Title = ev.Key
		c.Body = fmt.Sprintf("%s triggered %s.", actor, ev.Key)
	}

	if link, ok := ev.Data["link_url"].(string); ok && link != "" {
		c.LinkURL = &link
	}

	return c
}

func dataString(ev *event.Event, key, fallback string) string {
	if v, ok := ev.Data[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
