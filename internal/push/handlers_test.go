package push_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/printstore/internal/push"
	"github.com/noah-isme/printstore/internal/queue"
)

func newSurface(t *testing.T) (http.Handler, push.RedisTray, *push.Host) {
	t.Helper()
	tray := push.RedisTray{R: newRedis(t), Prefix: "h"}
	windows := push.NewWindowSet(nil)
	host := push.NewHost(zerolog.Nop())
	h := &push.Handler{
		Agent:   newAgent(t, tray, windows),
		Host:    host,
		Tray:    tray,
		Windows: windows,
		Logger:  zerolog.Nop(),
	}
	r := chi.NewRouter()
	h.Routes(r)
	return r, tray, host
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPushThenClickOverHTTP(t *testing.T) {
	h, _, _ := newSurface(t)

	rec := do(t, h, http.MethodPost, "/push", `{"title":"Job 42 printed","url":"/jobs/42","job_id":"42"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Data push.Notification `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "Job 42 printed", created.Data.Title)

	rec = do(t, h, http.MethodGet, "/notifications", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), created.Data.ID)

	rec = do(t, h, http.MethodPost, "/notifications/"+created.Data.ID+"/click", `{"action":"open"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var act struct {
		Data push.Activation `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &act))
	require.Equal(t, testOrigin+"/admin", act.Data.Destination)
	require.True(t, act.Data.Opened)

	rec = do(t, h, http.MethodPost, "/notifications/"+created.Data.ID+"/click", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/windows", "")
	require.Contains(t, rec.Body.String(), testOrigin+"/admin")
}

func TestPushGarbageOverHTTP(t *testing.T) {
	h, _, _ := newSurface(t)
	rec := do(t, h, http.MethodPost, "/push", "not json")
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), `"title":"Print Store"`)
	require.Contains(t, rec.Body.String(), `"body":"not json"`)

	rec = do(t, h, http.MethodPost, "/push", strings.Repeat("x", 5000))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestCloseOverHTTP(t *testing.T) {
	h, tray, _ := newSurface(t)
	rec := do(t, h, http.MethodPost, "/push", "")
	require.Equal(t, http.StatusCreated, rec.Code)

	items, err := tray.List(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)

	rec = do(t, h, http.MethodPost, "/notifications/"+items[0].ID+"/close", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	items, err = tray.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestWindowRegistration(t *testing.T) {
	h, _, _ := newSurface(t)
	rec := do(t, h, http.MethodPost, "/windows", `{"url":"`+testOrigin+`/admin"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Data push.Window `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = do(t, h, http.MethodDelete, "/windows/"+created.Data.ID, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodDelete, "/windows/"+created.Data.ID, "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/windows", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

type brokenWindows struct{ *push.WindowSet }

func (brokenWindows) List(context.Context) ([]push.Window, error) {
	return nil, errors.New("window list unavailable")
}

func TestListWindowsFailure(t *testing.T) {
	tray := push.RedisTray{R: newRedis(t), Prefix: "w"}
	windows := brokenWindows{push.NewWindowSet(nil)}
	h := &push.Handler{
		Agent:   newAgent(t, tray, windows),
		Host:    push.NewHost(zerolog.Nop()),
		Tray:    tray,
		Windows: windows,
		Logger:  zerolog.Nop(),
	}
	r := chi.NewRouter()
	h.Routes(r)

	rec := do(t, r, http.MethodGet, "/windows", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "INTERNAL")
}

func TestPublisherToAgentThroughChannel(t *testing.T) {
	client := newRedis(t)
	tray := push.RedisTray{R: client, Prefix: "e2e"}
	host := push.NewHost(zerolog.Nop())
	agent := newAgent(t, tray, push.NewWindowSet(nil))
	enq := queue.Enqueuer{R: client, Prefix: "e2e"}

	pub := push.Publisher{Queue: enq}
	_, err := pub.Send(context.Background(), push.PaymentReceived(2, 45, "job-7"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker := queue.Worker{
		R:                 client,
		Prefix:            "e2e",
		Kind:              push.QueueKind,
		VisibilityTimeout: time.Second,
		Handler:           push.Consumer{Agent: agent, Host: host}.Handle,
	}
	done := make(chan struct{})
	go func() {
		_ = worker.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		items, err := tray.List(context.Background())
		return err == nil && len(items) == 1
	}, 3*time.Second, 20*time.Millisecond)

	items, err := tray.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, "💰 New Payment Received!", items[0].Title)
	require.Equal(t, "2 file(s) - ₹45", items[0].Body)
	require.Equal(t, "job-7", items[0].Data.JobID)
	require.Equal(t, "structured", items[0].Tier)

	cancel()
	<-done
	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Second)
	defer drainCancel()
	require.NoError(t, host.Drain(drainCtx))
}
