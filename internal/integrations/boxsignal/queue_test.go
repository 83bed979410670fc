package boxsignal

import (
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu        sync.Mutex
	connected bool
	fail      bool
	messages  []string
	subjects  []string
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("write failed")
	}
	f.subjects = append(f.subjects, subject)
	f.messages = append(f.messages, string(data))
	return nil
}

func (f *fakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakePublisher) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestFormatMessage(t *testing.T) {
	assert.Equal(t, "CODE:1234:BOX_1\n", FormatMessage("1234", "BOX_1"))
}

func TestQueue_DeliversWhenConnected(t *testing.T) {
	pub := &fakePublisher{connected: true}
	q := NewQueue(pub, "boxes.codes", quietLogger())

	var observed []bool
	q.SetObserver(func(ok bool) { observed = append(observed, ok) })

	q.Enqueue("1234", "BOX_1", "card-1")

	assert.Equal(t, []string{"CODE:1234:BOX_1\n"}, pub.messages)
	assert.Equal(t, []string{"boxes.codes"}, pub.subjects)
	assert.Equal(t, 0, q.Pending())
	entries := q.Entries()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Sent)
	assert.NotNil(t, entries[0].SentAt)
	assert.Equal(t, []bool{true}, observed)
}

func TestQueue_ReplaysAfterReconnect(t *testing.T) {
	pub := &fakePublisher{}
	q := NewQueue(pub, "boxes.codes", quietLogger())

	q.Enqueue("1111", "BOX_1", "card-1")
	q.Enqueue("2222", "BOX_2", "card-2")
	assert.Empty(t, pub.messages)
	assert.Equal(t, 2, q.Pending())

	assert.Equal(t, 0, q.Replay(), "nothing is delivered while disconnected")

	pub.setConnected(true)
	assert.Equal(t, 2, q.Replay())
	assert.Equal(t, []string{"CODE:1111:BOX_1\n", "CODE:2222:BOX_2\n"}, pub.messages)
	assert.Equal(t, 0, q.Pending())

	assert.Equal(t, 0, q.Replay(), "delivered codes are not resent")
}

func TestQueue_FailedSendStaysPending(t *testing.T) {
	pub := &fakePublisher{connected: true, fail: true}
	q := NewQueue(pub, "boxes.codes", quietLogger())

	q.Enqueue("3333", "BOX_3", "card-3")
	assert.Equal(t, 1, q.Pending())

	pub.mu.Lock()
	pub.fail = false
	pub.mu.Unlock()
	assert.Equal(t, 1, q.Replay())
	assert.Equal(t, 0, q.Pending())
}

func TestQueue_NilPublisher(t *testing.T) {
	q := NewQueue(nil, "boxes.codes", quietLogger())
	q.Enqueue("4444", "BOX_1", "card-4")
	assert.Equal(t, 1, q.Pending())
	assert.Equal(t, 0, q.Replay())

	pub := &fakePublisher{connected: true}
	q.SetPublisher(pub)
	assert.Equal(t, 0, q.Pending())
	assert.Len(t, pub.messages, 1)
}

func TestQueue_RejectsIncompleteEntries(t *testing.T) {
	q := NewQueue(nil, "boxes.codes", quietLogger())
	q.Enqueue("", "BOX_1", "card")
	q.Enqueue("1234", "", "card")
	assert.Empty(t, q.Entries())
}

func TestQueue_Clear(t *testing.T) {
	q := NewQueue(nil, "boxes.codes", quietLogger())
	q.Enqueue("1234", "BOX_1", "card")
	q.Clear()
	assert.Empty(t, q.Entries())
	assert.Equal(t, 0, q.Pending())
}

// holdingPublisher parks the first send until released
type holdingPublisher struct {
	fakePublisher
	calls   int
	entered chan struct{}
	release chan struct{}
}

func (h *holdingPublisher) Publish(subject string, data []byte) error {
	h.mu.Lock()
	h.calls++
	first := h.calls == 1
	h.mu.Unlock()
	if first {
		close(h.entered)
		<-h.release
	}
	return h.fakePublisher.Publish(subject, data)
}

func TestQueue_ReplaySkipsCodeBeingSent(t *testing.T) {
	pub := &holdingPublisher{
		fakePublisher: fakePublisher{connected: true},
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	q := NewQueue(pub, "boxes.codes", quietLogger())

	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Enqueue("5555", "BOX_2", "card-5")
	}()
	<-pub.entered

	assert.Equal(t, 0, q.Replay())
	assert.Equal(t, 1, q.Pending())

	close(pub.release)
	<-done

	assert.Equal(t, 0, q.Pending())
	assert.Equal(t, 0, q.Replay())
	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Equal(t, []string{"CODE:5555:BOX_2\n"}, pub.messages)
}
