package model

import "strings"

// Status is a named lifecycle state drawn from WorkflowConfig.Statuses.
type Status string

func (s Status) String() string { return string(s) }

// JoinStatuses renders a status list for messages, e.g. "todo, done".
func JoinStatuses(ss []Status) string {
	parts := make([]string, len(ss))
	for i, s := range ss {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}
