package execution

import (
	"context"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kfake"
	"github.com/twmb/franz-go/pkg/kgo"
)

func TestKafkaEnqueuer(t *testing.T) {
	const topic = "executions"
	cluster, err := kfake.NewCluster(kfake.NumBrokers(1), kfake.SeedTopics(1, topic))
	require.NoError(t, err)
	t.Cleanup(cluster.Close)
	addrs := cluster.ListenAddrs()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	enq, err := NewKafkaEnqueuer(KafkaConfig{
		Address:      addrs[0],
		Topic:        topic,
		ClientID:     "cqlflow-test",
		DialTimeout:  time.Second,
		WriteTimeout: 5 * time.Second,
	}, log.NewNopLogger(), prometheus.NewRegistry())
	require.NoError(t, err)
	defer enq.Close()

	e, err := NewFactory(enq, nil).Create(ctx, triggerContext, fetchOutput(t))
	require.NoError(t, err)

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(addrs...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.NoError(t, fetches.Err())
	records := fetches.Records()
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, e.ID, string(rec.Key))
	expected, err := e.Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, string(expected), string(rec.Value))

	headers := map[string]string{}
	for _, h := range rec.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, map[string]string{"namespace": "company.team", "flow": "cassandra", "revision": "3"}, headers)
}

func TestNewEnqueuer(t *testing.T) {
	enq, closer, err := NewEnqueuer(Config{Enqueuer: EnqueuerLog}, log.NewNopLogger(), prometheus.NewRegistry())
	require.NoError(t, err)
	defer closer()
	assert.IsType(t, &LogEnqueuer{}, enq)

	_, _, err = NewEnqueuer(Config{Enqueuer: EnqueuerKafka}, log.NewNopLogger(), prometheus.NewRegistry())
	assert.ErrorIs(t, err, ErrMissingKafkaAddress)
}
