package gateway

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchd/internal/domain"
)

type memAudit struct {
	mu     sync.Mutex
	events []domain.AuditEvent
	err    error
}

func (m *memAudit) Log(_ context.Context, e domain.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return m.err
}

func (m *memAudit) Close() error { return nil }

func (m *memAudit) snapshot() []domain.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.AuditEvent(nil), m.events...)
}

func TestAuditRPCCalls(t *testing.T) {
	f := newFixture(t)
	a := &memAudit{}
	WithAudit(a)(f.srv)

	_, err := f.call(t, "switch.toggle", `{"id":"wifi"}`)
	require.NoError(t, err)
	_, err = f.call(t, "switch.get", `{"id":"ghost"}`)
	require.Error(t, err)
	_, err = f.call(t, "switch.get", `{}`)
	require.Error(t, err)

	events := a.snapshot()
	require.Len(t, events, 3)
	assert.Equal(t, domain.AuditEvent{Type: domain.AuditRemoteCall, Actor: "t", Action: "switch.toggle", Resource: "wifi", Outcome: "ok"}, events[0])
	assert.Equal(t, string(domain.CodeSwitchNotFound), events[1].Outcome)
	assert.Equal(t, "ghost", events[1].Resource)
	assert.Equal(t, string(domain.ErrorCodeOf(err)), events[2].Outcome)
}

func TestAuditRESTActionsAndDenials(t *testing.T) {
	f := newFixture(t)
	a := &memAudit{}
	WithAudit(a)(f.srv)
	ts := newRESTServer(t, f)

	doREST(t, http.MethodGet, ts.URL+"/api/v1/switches", "test-token")
	doREST(t, http.MethodPost, ts.URL+"/api/v1/switches/wifi/toggle", "test-token")
	doREST(t, http.MethodPost, ts.URL+"/api/v1/switches/ghost/refresh", "test-token")
	doREST(t, http.MethodPost, ts.URL+"/api/v1/switches/wifi/toggle", "wrong")

	events := a.snapshot()
	require.Len(t, events, 3, "GET requests are not audited")

	assert.Equal(t, domain.AuditRemoteCall, events[0].Type)
	assert.Equal(t, "tester", events[0].Actor)
	assert.Equal(t, "POST /api/v1/switches/wifi/toggle", events[0].Action)
	assert.Equal(t, "wifi", events[0].Resource)
	assert.Equal(t, "ok", events[0].Outcome)

	assert.Equal(t, "ghost", events[1].Resource)
	assert.Equal(t, http.StatusText(http.StatusNotFound), events[1].Outcome)

	assert.Equal(t, domain.AuditAuthDenied, events[2].Type)
	assert.Equal(t, "127.0.0.1", events[2].Actor)
	assert.Equal(t, "denied", events[2].Outcome)
}

func TestAuditWebsocketDenied(t *testing.T) {
	a := &memAudit{}
	srv := startTestServer(t, &testBus{}, WithAudit(a))

	resp, err := http.Get("http://" + srv.BoundAddr() + "/ws?token=bad")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	events := a.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, domain.AuditAuthDenied, events[0].Type)
	assert.Equal(t, "GET /ws", events[0].Action)
}

func TestAuditWriteFailureDoesNotFailCall(t *testing.T) {
	f := newFixture(t)
	WithAudit(&memAudit{err: errors.New("disk full")})(f.srv)
	_, err := f.call(t, "switch.list", "")
	assert.NoError(t, err)
}
