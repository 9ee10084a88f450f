package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibeflow/taskvibe/internal/logging"
)

type fakePublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return p.err
}

func TestNATSForwarder(t *testing.T) {
	pub := &fakePublisher{}
	f := NewNATSForwarder(pub, "acme.tasks.", logging.Discard())

	f.Forward(Event{ID: "evt_1", Type: EventTaskCreated, TaskID: "task_1", Timestamp: time.Unix(0, 0).UTC()})

	require.Len(t, pub.subjects, 1)
	assert.Equal(t, "acme.tasks.task_created", pub.subjects[0])
	var got Event
	require.NoError(t, json.Unmarshal(pub.payloads[0], &got))
	assert.Equal(t, "task_1", got.TaskID)
}

func TestNATSForwarder_DefaultPrefixAndErrors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("no responders")}
	f := NewNATSForwarder(pub, "", logging.Discard())
	assert.Equal(t, "taskvibe.events.status_changed", f.Subject(EventStatusChanged))
	// Errors are logged, never propagated to the bus.
	f.Forward(Event{Type: EventStatusChanged})
	assert.Len(t, pub.subjects, 1)
}
