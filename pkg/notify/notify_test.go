package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rivalscope/rivalscope/pkg/market"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	alerts []market.Alert
	err    error
}

func (r *recorder) Send(_ context.Context, a market.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return r.err
}

func alert(id string) market.Alert {
	return market.Alert{ID: id, Type: market.AlertPriceChange, Severity: market.AlertCritical, Title: "Price increase", Message: "R499 to R599"}
}

func TestDispatcherDeliversInBackground(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec, nil)
	d.Dispatch(alert("a1"))
	d.Dispatch(alert("a2"))
	d.Wait()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Len(t, rec.alerts, 2)
}

func TestDispatcherLogsFailures(t *testing.T) {
	logger, hook := test.NewNullLogger()
	d := NewDispatcher(&recorder{err: errors.New("smtp down")}, logger)
	d.Dispatch(alert("a1"))
	d.Wait()

	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Contains(t, hook.LastEntry().Message, "smtp down")
}

func TestNilDispatcherIsNoop(t *testing.T) {
	var d *Dispatcher
	d.Dispatch(alert("a1"))
	d.Wait()
}

func TestLogSender(t *testing.T) {
	logger, hook := test.NewNullLogger()
	require.NoError(t, LogSender{Logger: logger}.Send(context.Background(), alert("a1")))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, market.AlertPriceChange, hook.LastEntry().Data["type"])
}

func TestWebhookSender(t *testing.T) {
	var got market.Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL, 0, 5*time.Second)
	require.NoError(t, s.Send(context.Background(), alert("a1")))
	assert.Equal(t, "a1", got.ID)
	assert.Equal(t, market.AlertCritical, got.Severity)
}

func TestWebhookSenderRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewWebhookSender(srv.URL, 0, 5*time.Second).Send(context.Background(), alert("a1"))
	assert.Error(t, err)
}

func TestMulti(t *testing.T) {
	ok, bad := &recorder{}, &recorder{err: errors.New("nope")}
	err := Multi{ok, bad}.Send(context.Background(), alert("a1"))
	assert.EqualError(t, err, "nope")
	assert.Len(t, ok.alerts, 1)
}
