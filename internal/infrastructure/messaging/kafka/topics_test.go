package kafka

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/FCE-Intelligence/pkg/errors"
)

type mockConn struct {
	created    []kafka.TopicConfig
	createErr  error
	partitions map[string][]kafka.Partition
}

func (m *mockConn) CreateTopics(topics ...kafka.TopicConfig) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, topics...)
	return nil
}

func (m *mockConn) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	var out []kafka.Partition
	for _, t := range topics {
		out = append(out, m.partitions[t]...)
	}
	return out, nil
}

func (m *mockConn) Close() error { return nil }

func TestEventEnvelope_RoundTrip(t *testing.T) {
	env, err := NewEventEnvelope(EventReportRequested, "apiserver", map[string]string{"jobId": "j1"})
	require.NoError(t, err)
	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, SchemaVersion, env.SchemaVersion)

	pm, err := env.ToMessage(TopicReportRequested, []byte("j1"))
	require.NoError(t, err)
	assert.Equal(t, "apiserver", pm.Headers[HeaderSource])
	assert.Equal(t, EventReportRequested, pm.Headers[HeaderEventType])

	back, err := MessageToEventEnvelope(&Message{Topic: pm.Topic, Value: pm.Value})
	require.NoError(t, err)
	var payload map[string]string
	require.NoError(t, back.DecodePayload(&payload))
	assert.Equal(t, "j1", payload["jobId"])
}

func TestMessageToEventEnvelope_Errors(t *testing.T) {
	_, err := MessageToEventEnvelope(&Message{})
	assert.True(t, errors.IsValidation(err))

	_, err = MessageToEventEnvelope(&Message{Value: []byte("{not json")})
	assert.True(t, errors.IsCode(err, errors.ErrCodeSerialization))

	env := &EventEnvelope{EventID: "e"}
	assert.True(t, errors.IsValidation(env.DecodePayload(&struct{}{})))
}

func TestTopicManager_CreateTopic(t *testing.T) {
	conn := &mockConn{}
	m := newTopicManager(conn, nil)

	err := m.CreateTopic(context.Background(), TopicConfig{
		Name: "t", NumPartitions: 3, ReplicationFactor: 1, RetentionMs: 1000, CleanupPolicy: "delete",
	})
	require.NoError(t, err)
	require.Len(t, conn.created, 1)
	assert.Equal(t, "t", conn.created[0].Topic)
	assert.Len(t, conn.created[0].ConfigEntries, 2)
}

func TestTopicManager_CreateTopic_Validation(t *testing.T) {
	m := newTopicManager(&mockConn{}, nil)
	ctx := context.Background()

	assert.True(t, errors.IsValidation(m.CreateTopic(ctx, TopicConfig{})))
	assert.True(t, errors.IsValidation(m.CreateTopic(ctx, TopicConfig{Name: "t", ReplicationFactor: 1})))
	assert.True(t, errors.IsValidation(m.CreateTopic(ctx, TopicConfig{Name: "t", NumPartitions: 1})))
}

func TestTopicManager_ExistingTopicIsNotAnError(t *testing.T) {
	m := newTopicManager(&mockConn{createErr: kafka.TopicAlreadyExists}, nil)
	assert.NoError(t, m.CreateTopic(context.Background(), TopicConfig{Name: "t", NumPartitions: 1, ReplicationFactor: 1}))

	m = newTopicManager(&mockConn{
		createErr:  assert.AnError,
		partitions: map[string][]kafka.Partition{"t": {{Topic: "t"}}},
	}, nil)
	assert.NoError(t, m.CreateTopic(context.Background(), TopicConfig{Name: "t", NumPartitions: 1, ReplicationFactor: 1}))

	m = newTopicManager(&mockConn{createErr: assert.AnError}, nil)
	err := m.CreateTopic(context.Background(), TopicConfig{Name: "t", NumPartitions: 1, ReplicationFactor: 1})
	assert.True(t, errors.IsCode(err, errors.ErrCodeMessagingError))
}

func TestDefaultTopics(t *testing.T) {
	topics := DefaultTopics("", 0)
	require.Len(t, topics, 2)
	assert.Equal(t, TopicReportRequested, topics[0].Name)
	assert.Equal(t, TopicReportDeadLetter, topics[1].Name)
	assert.Equal(t, 1, topics[0].ReplicationFactor)

	conn := &mockConn{}
	require.NoError(t, newTopicManager(conn, nil).EnsureTopics(context.Background(), DefaultTopics("reports", 3)))
	require.Len(t, conn.created, 2)
	assert.Equal(t, "reports.dead_letter", conn.created[1].Topic)
	assert.Equal(t, 3, conn.created[1].ReplicationFactor)
}
