package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentboard/agentboard/internal/common/logger"
	"github.com/agentboard/agentboard/internal/events"
	"github.com/agentboard/agentboard/internal/events/bus"
	"github.com/agentboard/agentboard/internal/ticket/repository"
	v1 "github.com/agentboard/agentboard/pkg/api/v1"
)

// MockEventBus records published events for assertions.
type MockEventBus struct {
	mu     sync.Mutex
	events []*bus.Event
}

func (m *MockEventBus) Publish(ctx context.Context, subject string, event *bus.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MockEventBus) Subscribe(subject string, handler bus.EventHandler) (bus.Subscription, error) {
	return nil, nil
}

func (m *MockEventBus) Close()            {}
func (m *MockEventBus) IsConnected() bool { return true }

func (m *MockEventBus) published() []*bus.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*bus.Event, len(m.events))
	copy(out, m.events)
	return out
}

func setupTestRouter(t *testing.T) (*gin.Engine, repository.Repository, *MockEventBus) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json", OutputPath: "stdout"})
	require.NoError(t, err)

	repo := repository.NewMemoryRepository()
	eventBus := &MockEventBus{}

	router := gin.New()
	apiV1 := router.Group("/api/v1")
	SetupRoutes(apiV1, repo, eventBus, log)

	return router, repo, eventBus
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeTicket(t *testing.T, rec *httptest.ResponseRecorder) *v1.Ticket {
	t.Helper()
	var ticket v1.Ticket
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ticket))
	return &ticket
}

func TestCreateTicket(t *testing.T) {
	router, _, eventBus := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/tickets", CreateTicketRequest{
		Title:       "Add search endpoint",
		Description: "Implement GET /search",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	ticket := decodeTicket(t, rec)
	assert.NotEmpty(t, ticket.ID)
	assert.Equal(t, "Add search endpoint", ticket.Title)
	assert.Equal(t, v1.TicketStateTodo, ticket.State)

	published := eventBus.published()
	require.Len(t, published, 1)
	assert.Equal(t, events.TicketCreated, published[0].Type)
	assert.Equal(t, ticket.ID, published[0].Data["ticket_id"])
}

func TestCreateTicket_MissingTitle(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/tickets", map[string]string{
		"description": "no title here",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTicket(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	created := decodeTicket(t, doJSON(t, router, http.MethodPost, "/api/v1/tickets", CreateTicketRequest{Title: "Lookup"}))

	rec := doJSON(t, router, http.MethodGet, "/api/v1/tickets/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Lookup", decodeTicket(t, rec).Title)
}

func TestGetTicket_NotFound(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/tickets/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateTicket(t *testing.T) {
	router, _, eventBus := setupTestRouter(t)

	created := decodeTicket(t, doJSON(t, router, http.MethodPost, "/api/v1/tickets", CreateTicketRequest{
		Title:       "Old title",
		Description: "old",
	}))

	newTitle := "New title"
	rec := doJSON(t, router, http.MethodPut, "/api/v1/tickets/"+created.ID, UpdateTicketRequest{Title: &newTitle})
	require.Equal(t, http.StatusOK, rec.Code)

	updated := decodeTicket(t, rec)
	assert.Equal(t, "New title", updated.Title)
	assert.Equal(t, "old", updated.Description, "unset fields are preserved")

	published := eventBus.published()
	require.Len(t, published, 2)
	assert.Equal(t, events.TicketUpdated, published[1].Type)
}

func TestDeleteTicket(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	created := decodeTicket(t, doJSON(t, router, http.MethodPost, "/api/v1/tickets", CreateTicketRequest{Title: "Ephemeral"}))

	rec := doJSON(t, router, http.MethodDelete, "/api/v1/tickets/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/tickets/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/api/v1/tickets/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListTickets(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	for _, title := range []string{"one", "two"} {
		doJSON(t, router, http.MethodPost, "/api/v1/tickets", CreateTicketRequest{Title: title})
	}

	rec := doJSON(t, router, http.MethodGet, "/api/v1/tickets", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TicketsListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	require.Len(t, resp.Tickets, 2)
	assert.Equal(t, "one", resp.Tickets[0].Title)
}

func TestMoveTicket(t *testing.T) {
	router, _, eventBus := setupTestRouter(t)

	created := decodeTicket(t, doJSON(t, router, http.MethodPost, "/api/v1/tickets", CreateTicketRequest{Title: "Mover"}))

	rec := doJSON(t, router, http.MethodPut, "/api/v1/tickets/"+created.ID+"/state", MoveTicketRequest{
		State: string(v1.TicketStateInProgress),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, v1.TicketStateInProgress, decodeTicket(t, rec).State)

	published := eventBus.published()
	require.Len(t, published, 2)
	assert.Equal(t, events.TicketMoved, published[1].Type)
}

func TestMoveTicket_InvalidState(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	created := decodeTicket(t, doJSON(t, router, http.MethodPost, "/api/v1/tickets", CreateTicketRequest{Title: "Stuck"}))

	rec := doJSON(t, router, http.MethodPut, "/api/v1/tickets/"+created.ID+"/state", MoveTicketRequest{
		State: "LIMBO",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMoveTicket_NotFound(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodPut, "/api/v1/tickets/ghost/state", MoveTicketRequest{
		State: string(v1.TicketStateDone),
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
