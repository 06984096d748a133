package chat

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/rentdesk/rentdesk-platform/internal/http/middleware"
)

func newHandlerFixture(t *testing.T) (*Handler, pgxmock.PgxPoolIface, *miniredis.Miniredis) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	mr := miniredis.RunT(t)
	reads := NewReadStateStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	return NewHandler(NewStore(mock), reads, nil), mock, mr
}

func routeRequest(req *http.Request, conversationID string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("conversationID", conversationID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestGetConversationReturnsJSON(t *testing.T) {
	h, mock, _ := newHandlerFixture(t)
	convID := uuid.New()
	now := time.Now()

	cols := []string{
		"id", "participant_phone", "business_phone_id", "participant_name", "assigned_agent",
		"source", "snapshot_name", "snapshot_phone",
		"last_message_id", "last_message_content", "last_message_time",
		"last_message_direction", "last_message_status",
		"last_incoming_message_time", "last_outgoing_message_time",
		"last_customer_message_at", "first_message_time",
		"is_retarget", "retarget_stage", "owner_role", "is_archived",
		"created_at", "updated_at",
	}
	mock.ExpectQuery("SELECT .+ FROM conversations WHERE id").
		WithArgs(convID).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			convID, "919876543210", "555123", "Maria", nil,
			SourceMeta, "Maria", "919876543210",
			"", "Hello", nil,
			DirectionIncoming, "",
			nil, nil,
			nil, nil,
			false, "", "", false,
			now, now,
		))

	req := routeRequest(httptest.NewRequest(http.MethodGet, "/admin/conversations/"+convID.String(), nil), convID.String())
	rr := httptest.NewRecorder()
	h.GetConversation(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), convID.String())
	require.Contains(t, rr.Body.String(), `"participant_name":"Maria"`)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetConversationInvalidID(t *testing.T) {
	h, _, _ := newHandlerFixture(t)

	req := routeRequest(httptest.NewRequest(http.MethodGet, "/admin/conversations/nope", nil), "nope")
	rr := httptest.NewRecorder()
	h.GetConversation(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMarkReadStoresReadState(t *testing.T) {
	h, _, _ := newHandlerFixture(t)
	convID := uuid.New()

	req := routeRequest(httptest.NewRequest(http.MethodPost, "/admin/conversations/"+convID.String()+"/read", nil), convID.String())
	claims := middleware.StaffClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "staff-7"}, Role: "Sales"}
	req = req.WithContext(middleware.WithStaffClaims(req.Context(), claims))

	rr := httptest.NewRecorder()
	h.MarkRead(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)

	readAt, ok, err := h.reads.LastReadAt(context.Background(), convID, "staff-7")
	require.NoError(t, err)
	require.True(t, ok)
	require.WithinDuration(t, time.Now(), readAt, 5*time.Second)
}

func TestMarkReadRequiresAuth(t *testing.T) {
	h, _, _ := newHandlerFixture(t)
	convID := uuid.New()

	req := routeRequest(httptest.NewRequest(http.MethodPost, "/admin/conversations/"+convID.String()+"/read", nil), convID.String())
	rr := httptest.NewRecorder()
	h.MarkRead(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestSetArchived(t *testing.T) {
	h, mock, _ := newHandlerFixture(t)
	convID := uuid.New()

	mock.ExpectExec("UPDATE conversations SET is_archived").
		WithArgs(convID, true).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	body := bytes.NewBufferString(`{"archived":true}`)
	req := routeRequest(httptest.NewRequest(http.MethodPost, "/admin/conversations/"+convID.String()+"/archive", body), convID.String())
	rr := httptest.NewRecorder()
	h.SetArchived(rr, req)

	require.Equal(t, http.StatusNoContent, rr.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}
