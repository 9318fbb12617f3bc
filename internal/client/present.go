package client

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/btouchard/switchboard/internal/wire"
)

// Presentation is the user-facing rendering of a message.
type Presentation struct {
	Title    string
	Message  string
	Priority wire.Priority
}

// Presenter renders a message. Custom presenters may block or fail; the
// pipeline runs them outside its lock and recovers their panics.
type Presenter func(Message) (Presentation, error)

// DefaultPresenter builds titles like "Trip Completed" from the category and status.
func DefaultPresenter(m Message) (Presentation, error) {
	return Presentation{
		Title:    titleOf(m),
		Message:  messageOf(m),
		Priority: priorityOf(m),
	}, nil
}

func titleOf(m Message) string {
	if t := scalar(m.Data["title"]); t != "" {
		return t
	}
	if m.Type == wire.TypeNewTrip {
		return "New Trip"
	}

	subject := titleCase(string(m.Category))
	if status := scalar(m.Data["status"]); status != "" {
		return subject + " " + titleCase(status)
	}
	switch scalar(m.Data["action"]) {
	case "cancellation":
		return subject + " Cancelled"
	case "assignment":
		return subject + " Assigned"
	case "created":
		return "New " + subject
	case "status_update":
		return subject + " Status Changed"
	default:
		return subject + " Updated"
	}
}

func messageOf(m Message) string {
	if s := scalar(m.Data["message"]); s != "" {
		return s
	}

	var parts []string
	if name := scalar(m.Data["counterpartyName"]); name != "" && name != "Unknown" {
		parts = append(parts, name)
	}
	if tr := scalar(m.Data["statusTransition"]); tr != "" {
		parts = append(parts, tr)
	} else if status := scalar(m.Data["status"]); status != "" {
		parts = append(parts, "Now "+titleCase(status))
	}
	if len(parts) == 0 {
		if id := scalar(m.Data["id"]); id != "" {
			return titleCase(string(m.Category)) + " " + id
		}
		return ""
	}
	return strings.Join(parts, ": ")
}

func priorityOf(m Message) wire.Priority {
	if p, ok := wire.ParsePriority(scalar(m.Data["priority"])); ok {
		return p
	}
	switch strings.ToLower(scalar(m.Data["status"])) {
	case "cancelled", "canceled", "no_show":
		return wire.PriorityHigh
	case "completed":
		return wire.PriorityLow
	}
	if scalar(m.Data["action"]) == "cancellation" {
		return wire.PriorityHigh
	}
	return wire.PriorityMedium
}

func titleCase(s string) string {
	s = strings.NewReplacer("_", " ", "-", " ").Replace(strings.ToLower(s))
	return cases.Title(language.English).String(s)
}
