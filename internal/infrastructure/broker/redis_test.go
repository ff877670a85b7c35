package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kardex/internal/core/id"
	"kardex/internal/infrastructure/storage/postgres"
)

type publishSpy struct {
	redis.Cmdable
	channel string
	message []byte
	err     error
}

func (s *publishSpy) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "publish", channel, message)
	if s.err != nil {
		cmd.SetErr(s.err)
		return cmd
	}
	s.channel = channel
	s.message = message.([]byte)
	cmd.SetVal(1)
	return cmd
}

func TestRedisPublisher_Handle(t *testing.T) {
	spy := &publishSpy{}
	pub := NewRedisPublisher(spy, "")

	msg := &postgres.OutboxMessage{
		ID:            id.New(),
		AggregateType: "StockCascade",
		AggregateID:   id.New(),
		EventType:     postgres.EventCascadeCompleted,
		Payload:       []byte(`{"movementsAffected":2}`),
		CreatedAt:     time.Date(2025, 1, 20, 10, 0, 0, 0, time.UTC),
	}

	require.NoError(t, pub.Handle(context.Background(), msg))
	assert.Equal(t, DefaultChannel, spy.channel)

	var env Envelope
	require.NoError(t, json.Unmarshal(spy.message, &env))
	assert.Equal(t, msg.ID, env.ID)
	assert.Equal(t, "kardex.cascade.completed", env.EventType)
	assert.JSONEq(t, `{"movementsAffected":2}`, string(env.Payload))
}

func TestRedisPublisher_HandleError(t *testing.T) {
	spy := &publishSpy{err: errors.New("READONLY")}
	pub := NewRedisPublisher(spy, "custom")

	err := pub.Handle(context.Background(), &postgres.OutboxMessage{EventType: "x", Payload: []byte(`{}`)})
	assert.ErrorContains(t, err, "publish x: READONLY")
}
