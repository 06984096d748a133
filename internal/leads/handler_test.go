package leads

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type fakeRepo struct {
	leads map[uuid.UUID]*Lead
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{leads: make(map[uuid.UUID]*Lead)}
}

func (f *fakeRepo) Create(_ context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	lead := &Lead{
		ID:        uuid.New(),
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		Area:      req.Area,
		Source:    req.Source,
		CreatedAt: time.Now().UTC(),
	}
	f.leads[lead.ID] = lead
	return lead, nil
}

func (f *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (*Lead, error) {
	lead, ok := f.leads[id]
	if !ok {
		return nil, ErrLeadNotFound
	}
	return lead, nil
}

func (f *fakeRepo) FindByPhoneSuffix(_ context.Context, phone string, lengths ...int) (*Lead, error) {
	for _, suffix := range SuffixCandidates(phone, lengths...) {
		for _, lead := range f.leads {
			digits := Digits(lead.Phone)
			if len(digits) >= len(suffix) && digits[len(digits)-len(suffix):] == suffix {
				return lead, nil
			}
		}
	}
	return nil, ErrLeadNotFound
}

func (f *fakeRepo) MarkFirstReply(_ context.Context, id uuid.UUID, at time.Time) error {
	if lead, ok := f.leads[id]; ok && lead.FirstReplyAt == nil {
		lead.FirstReplyAt = &at
	}
	return nil
}

func (f *fakeRepo) Block(_ context.Context, id uuid.UUID, reason string, errorCode int) (bool, error) {
	lead, ok := f.leads[id]
	if !ok || lead.WhatsAppBlocked {
		return false, nil
	}
	lead.WhatsAppBlocked = true
	lead.WhatsAppBlockReason = reason
	lead.WhatsAppLastErrorCode = errorCode
	return true, nil
}

func TestCreateLead_Success(t *testing.T) {
	repo := newFakeRepo()
	handler := NewHandler(repo, nil)

	reqBody := CreateLeadRequest{
		Name:   "John Doe",
		Email:  "john@example.com",
		Phone:  "+1234567890",
		Area:   "andheri",
		Source: "website",
	}

	body, _ := json.Marshal(reqBody)
	req := httptest.NewRequest(http.MethodPost, "/admin/leads", bytes.NewReader(body))
	w := httptest.NewRecorder()

	handler.CreateLead(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("expected status %d, got %d", http.StatusCreated, w.Code)
	}

	var lead Lead
	if err := json.NewDecoder(w.Body).Decode(&lead); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if lead.Name != reqBody.Name {
		t.Errorf("expected name %s, got %s", reqBody.Name, lead.Name)
	}
	if lead.Area != reqBody.Area {
		t.Errorf("expected area %s, got %s", reqBody.Area, lead.Area)
	}
}

func TestCreateLead_InvalidRequest(t *testing.T) {
	repo := newFakeRepo()
	handler := NewHandler(repo, nil)

	body, _ := json.Marshal(CreateLeadRequest{Name: ""})
	req := httptest.NewRequest(http.MethodPost, "/admin/leads", bytes.NewReader(body))
	w := httptest.NewRecorder()

	handler.CreateLead(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestGetLead_NotFound(t *testing.T) {
	repo := newFakeRepo()
	handler := NewHandler(repo, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/leads/"+uuid.NewString(), nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("leadID", uuid.NewString())
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	w := httptest.NewRecorder()

	handler.GetLead(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}
