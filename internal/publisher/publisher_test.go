package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/expanse-labs/expander-go/pkg/model"
)

// mockJetStream overrides the handful of JetStreamContext methods the
// publisher touches; everything else panics via the embedded nil interface.
type mockJetStream struct {
	nats.JetStreamContext
	published  []*nats.Msg
	publishErr error
	streams    map[string]bool
	added      []*nats.StreamConfig
}

func (m *mockJetStream) PublishMsg(msg *nats.Msg, _ ...nats.PubOpt) (*nats.PubAck, error) {
	if m.publishErr != nil {
		return nil, m.publishErr
	}
	m.published = append(m.published, msg)
	return &nats.PubAck{Stream: "mock-stream"}, nil
}

func (m *mockJetStream) StreamInfo(stream string, _ ...nats.JSOpt) (*nats.StreamInfo, error) {
	if m.streams[stream] {
		return &nats.StreamInfo{}, nil
	}
	return nil, nats.ErrStreamNotFound
}

func (m *mockJetStream) AddStream(cfg *nats.StreamConfig, _ ...nats.JSOpt) (*nats.StreamInfo, error) {
	m.added = append(m.added, cfg)
	return &nats.StreamInfo{}, nil
}

func newTestPublisher(js nats.JetStreamContext) *Publisher {
	return &Publisher{js: js, subject: "evt.expander.event.v1", service: "expander-go"}
}

func testEnvelope() *model.Envelope {
	return &model.Envelope{
		ID:            uuid.New(),
		CorrelationID: uuid.New(),
		EventType:     "ON_PREM_EXPOSURE_APPEARANCE",
		Version:       "v1",
		Timestamp:     time.Now().UTC(),
		Payload:       json.RawMessage(`{"ip":"203.0.113.9"}`),
	}
}

func TestPublishEnvelope_SubjectAndHeaders(t *testing.T) {
	js := &mockJetStream{}
	pub := newTestPublisher(js)
	env := testEnvelope()

	require.NoError(t, pub.PublishEnvelope(context.Background(), "evt.custom", env))
	require.Len(t, js.published, 1)

	msg := js.published[0]
	assert.Equal(t, "evt.custom", msg.Subject)
	assert.Equal(t, env.EventType, msg.Header.Get("event_type"))
	assert.Equal(t, env.CorrelationID.String(), msg.Header.Get("correlation_id"))
	assert.Equal(t, "expander-go", msg.Header.Get("service"))
	assert.Equal(t, "application/json", msg.Header.Get("content_type"))

	var decoded model.Envelope
	require.NoError(t, json.Unmarshal(msg.Data, &decoded))
	assert.Equal(t, env.ID, decoded.ID)
}

func TestPublishEnvelope_EmptySubjectUsesDefault(t *testing.T) {
	js := &mockJetStream{}
	pub := newTestPublisher(js)

	require.NoError(t, pub.PublishEnvelope(context.Background(), "", testEnvelope()))
	require.Len(t, js.published, 1)
	assert.Equal(t, "evt.expander.event.v1", js.published[0].Subject)
}

func TestPublishEnvelope_PublishFailure(t *testing.T) {
	js := &mockJetStream{publishErr: errors.New("no responders")}
	pub := newTestPublisher(js)

	err := pub.PublishEnvelope(context.Background(), "", testEnvelope())
	assert.Error(t, err)
}

func TestEnsureStream_CreatesMissingStream(t *testing.T) {
	js := &mockJetStream{}
	pub := newTestPublisher(js)

	require.NoError(t, pub.EnsureStream("EXPANDER_EVENTS", "evt.expander.event.v1"))
	require.Len(t, js.added, 1)
	assert.Equal(t, "EXPANDER_EVENTS", js.added[0].Name)
	assert.Equal(t, []string{"evt.expander.event.v1"}, js.added[0].Subjects)
}

func TestEnsureStream_ExistingStreamUntouched(t *testing.T) {
	js := &mockJetStream{streams: map[string]bool{"EXPANDER_EVENTS": true}}
	pub := newTestPublisher(js)

	require.NoError(t, pub.EnsureStream("EXPANDER_EVENTS", "evt.expander.event.v1"))
	assert.Empty(t, js.added)
}
