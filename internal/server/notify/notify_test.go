package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/clouddrive/internal/logging"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var msg = ShareEmail{To: "bob@example.com", From: "alice@example.com", FileID: "f1", FileName: "a.txt", Link: "https://x/public/f1/tok"}

type fakeList struct {
	pushed  [][]byte
	trimmed [2]int64
	err     error
}

func (f *fakeList) LPush(_ context.Context, _ string, values ...any) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.pushed = append(f.pushed, values[0].([]byte))
	return redis.NewIntResult(int64(len(f.pushed)), nil)
}

func (f *fakeList) LTrim(_ context.Context, _ string, start, stop int64) *redis.StatusCmd {
	f.trimmed = [2]int64{start, stop}
	return redis.NewStatusResult("OK", nil)
}

func TestRedisDispatcher_PushesAndTrims(t *testing.T) {
	list := &fakeList{}
	d := &RedisDispatcher{rdb: list, key: DefaultQueueKey}

	require.NoError(t, d.Send(context.Background(), msg))
	require.Len(t, list.pushed, 1)

	var got ShareEmail
	require.NoError(t, json.Unmarshal(list.pushed[0], &got))
	assert.Equal(t, msg, got)
	assert.Equal(t, [2]int64{0, queueCap - 1}, list.trimmed)

	list.err = errors.New("down")
	assert.Error(t, d.Send(context.Background(), msg))
}

type fakePublisher struct {
	subject string
	data    []byte
	drained bool
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.subject, f.data = subject, data
	return nil
}

func (f *fakePublisher) Drain() error {
	f.drained = true
	return nil
}

func TestNATSDispatcher(t *testing.T) {
	pub := &fakePublisher{}
	d := &NATSDispatcher{conn: pub, subject: DefaultSubject}

	require.NoError(t, d.Send(context.Background(), msg))
	assert.Equal(t, DefaultSubject, pub.subject)
	assert.Contains(t, string(pub.data), `"fileId":"f1"`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Send(ctx, msg), context.Canceled)

	require.NoError(t, d.Close())
	assert.True(t, pub.drained)
}

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []ShareEmail
	err  error
	wait chan struct{}
}

func (r *recordingDispatcher) Send(ctx context.Context, m ShareEmail) error {
	if r.wait != nil {
		<-r.wait
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, m)
	return r.err
}

func (r *recordingDispatcher) Close() error { return nil }

func TestAsync_DoesNotPropagateErrors(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	next := &recordingDispatcher{err: errors.New("smtp down")}
	d := Async(next, logging.NewZapLogger(zap.New(core)), time.Second, 2)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Send(ctx, msg))
	cancel()
	require.NoError(t, d.Close())

	assert.Len(t, next.sent, 1)
	assert.Equal(t, 1, logs.FilterMessage("share email failed").Len())
}

func TestAsync_DropsWhenBusy(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	next := &recordingDispatcher{wait: make(chan struct{})}
	d := Async(next, logging.NewZapLogger(zap.New(core)), time.Second, 1)

	require.NoError(t, d.Send(context.Background(), msg))
	require.NoError(t, d.Send(context.Background(), msg))
	close(next.wait)
	require.NoError(t, d.Close())

	assert.Len(t, next.sent, 1)
	assert.Equal(t, 1, logs.FilterMessage("share email dropped, dispatcher busy").Len())
}

func TestLogDispatcher(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	d := NewLogDispatcher(logging.NewZapLogger(zap.New(core)))
	require.NoError(t, d.Send(context.Background(), msg))
	assert.Equal(t, 1, logs.FilterMessage("share email").Len())
}
