package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"inventory-engine/internal/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu      sync.Mutex
	sent    []notify.Email
	started chan struct{}
	release chan struct{}
	fail    bool
}

func (s *recordingSender) Send(_ context.Context, msg notify.Email) error {
	if s.started != nil {
		s.started <- struct{}{}
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	if s.fail {
		return errors.New("smtp down")
	}
	return nil
}

func (s *recordingSender) subjects() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	for i, m := range s.sent {
		out[i] = m.Subject
	}
	return out
}

func TestDispatcher_DeliversInOrderAndDrainsOnClose(t *testing.T) {
	sender := &recordingSender{}
	d := notify.NewDispatcher(sender, 8, "engine@x.io", []string{"ops@x.io"}, nil)

	d.Enqueue(notify.NewEvent(notify.EventNCRCreated, "NCR 1", "b"))
	d.Enqueue(notify.NewEvent(notify.EventTransferApproved, "Transfer 2", "b"))
	d.Enqueue(notify.NewEvent(notify.EventPeriodClosed, "Period 3", "b"))
	d.Close()

	assert.Equal(t, []string{"NCR 1", "Transfer 2", "Period 3"}, sender.subjects())
	assert.Equal(t, "engine@x.io", sender.sent[0].From)
	assert.Equal(t, []string{"ops@x.io"}, sender.sent[0].To)
	assert.Zero(t, d.Dropped())
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	sender := &recordingSender{started: make(chan struct{}), release: make(chan struct{})}
	d := notify.NewDispatcher(sender, 1, "f", nil, nil)

	d.Enqueue(notify.NewEvent(notify.EventNCRCreated, "first", ""))
	<-sender.started // worker now holds "first"

	d.Enqueue(notify.NewEvent(notify.EventNCRCreated, "second", "")) // fills the buffer
	d.Enqueue(notify.NewEvent(notify.EventNCRCreated, "third", ""))  // dropped
	assert.Equal(t, int64(1), d.Dropped())

	go func() {
		for range sender.started {
		}
	}()
	close(sender.release)
	d.Close()
	close(sender.started)

	assert.Equal(t, []string{"first", "second"}, sender.subjects())
}

func TestDispatcher_SendFailureDoesNotStopWorker(t *testing.T) {
	sender := &recordingSender{fail: true}
	d := notify.NewDispatcher(sender, 4, "f", nil, nil)
	d.Enqueue(notify.NewEvent(notify.EventTransferRejected, "a", ""))
	d.Enqueue(notify.NewEvent(notify.EventTransferRejected, "b", ""))
	d.Close()
	assert.Len(t, sender.subjects(), 2)

	d.Enqueue(notify.NewEvent(notify.EventTransferRejected, "late", ""))
	assert.Equal(t, int64(1), d.Dropped())
	d.Close()
}

func TestEventWith_CopiesAttributes(t *testing.T) {
	base := notify.NewEvent(notify.EventOverDeliveryFlagged, "s", "b")
	a := base.With("delivery_id", "7")
	assert.Empty(t, base.Attributes)
	assert.Equal(t, "7", a.Attributes["delivery_id"])
	assert.NotEqual(t, notify.NewEvent(notify.EventNCRCreated, "", "").ID, base.ID)
}

func TestResendSender_PostsEmail(t *testing.T) {
	var got notify.Email
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"em_1"}`))
	}))
	defer srv.Close()

	s := notify.NewResendSender(srv.URL+"/", "re_test")
	err := s.Send(context.Background(), notify.Email{From: "a@x.io", To: []string{"b@x.io"}, Subject: "hi", Text: "body"})
	require.NoError(t, err)
	assert.Equal(t, "hi", got.Subject)
	assert.Equal(t, []string{"b@x.io"}, got.To)
}

func TestResendSender_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"name":"validation_error","message":"invalid from"}`))
	}))
	defer srv.Close()

	err := notify.NewResendSender(srv.URL, "k").Send(context.Background(), notify.Email{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=422")
	assert.Contains(t, err.Error(), "invalid from")
}

func TestLogSender(t *testing.T) {
	assert.NoError(t, notify.NewLogSender(nil).Send(context.Background(), notify.Email{Subject: "x"}))
}
