package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestProducerPublishEncodesJSON(t *testing.T) {
	w := &recordingWriter{}
	p := NewProducerWithWriter(w, "wasteflow.exchange", "snappy")

	require.NoError(t, p.Publish(context.Background(), "listing-1", map[string]string{"type": "listing.created"}))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "listing-1", string(w.msgs[0].Key))
	assert.JSONEq(t, `{"type":"listing.created"}`, string(w.msgs[0].Value))
	assert.Equal(t, "wasteflow.exchange", p.Topic())
}

func TestProducerPublishPropagatesWriterError(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	p := NewProducerWithWriter(w, "t", "gzip")
	assert.EqualError(t, p.Publish(context.Background(), "k", "raw"), "broker down")
}

func TestNewProducerRequiresBrokersAndTopic(t *testing.T) {
	_, err := NewProducer(WithTopic("t"))
	assert.Error(t, err)
	_, err = NewProducer(WithBrokers([]string{"localhost:9092"}))
	assert.Error(t, err)
}

func TestParseCompression(t *testing.T) {
	assert.Equal(t, kafka.Gzip, parseCompression("gzip"))
	assert.Equal(t, kafka.Zstd, parseCompression("zstd"))
	assert.Equal(t, kafka.Snappy, parseCompression(""))
}
