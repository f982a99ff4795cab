package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"jansahayak/internal/complaint"
	"jansahayak/internal/errors"
	"jansahayak/internal/health"
	"jansahayak/internal/memory"
	"jansahayak/internal/orchestrator"
	"jansahayak/internal/planner"
	"jansahayak/internal/store"
)

type scriptedVision struct {
	err error
}

func (v *scriptedVision) Analyze(ctx context.Context, photo []byte, mimeType string, issueType complaint.DamageType) (complaint.DamageAssessment, error) {
	if v.err != nil {
		return complaint.DamageAssessment{}, v.err
	}
	return complaint.DamageAssessment{
		Type:        issueType,
		Severity:    5,
		Factors:     []complaint.RiskFactor{complaint.FactorNearSchool},
		Description: "Deep pothole on the school route",
	}, nil
}

type scriptedPlanner struct{}

func (p *scriptedPlanner) Plan(ctx context.Context, pc planner.Context) (*complaint.ActionPlan, error) {
	return &complaint.ActionPlan{
		ImmediateActions: []string{"Barricade the pothole"},
		Timeline:         "3 days",
	}, nil
}

func newTestRouter(t *testing.T, vision *scriptedVision) (*gin.Engine, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.Open(filepath.Join(t.TempDir(), "complaints.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	idx := memory.NewIndex()
	st.SetRecurrenceIndex(idx)

	orch := orchestrator.New(vision, &scriptedPlanner{}, idx, st, health.NewMonitor(), orchestrator.Options{
		RetryDelay: time.Millisecond,
	})

	router := gin.New()
	NewHandler(orch, st, health.NewMonitor()).RegisterRoutes(router)
	return router, st
}

func submitBody() []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"citizen_name":  "Asha Patel",
		"citizen_phone": "9876543210",
		"issue_type":    "pothole",
		"latitude":      21.0710,
		"longitude":     73.0740,
		"address":       "Near bus depot, Valod",
		"photo_base64":  base64.StdEncoding.EncodeToString([]byte("jpeg-bytes")),
	})
	return body
}

func doRequest(router *gin.Engine, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSubmitComplaint(t *testing.T) {
	router, _ := newTestRouter(t, &scriptedVision{})

	w := doRequest(router, http.MethodPost, "/api/complaints", submitBody())
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var got complaint.Complaint
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if got.ID == "" {
		t.Error("response has no complaint ID")
	}
	if got.Risk.Score != 50 || got.Risk.Tier != complaint.TierHigh {
		t.Errorf("risk = %+v", got.Risk)
	}
	if got.Status != complaint.StatusSubmitted {
		t.Errorf("status = %s", got.Status)
	}
}

func TestSubmitComplaintRejectsMissingFields(t *testing.T) {
	router, _ := newTestRouter(t, &scriptedVision{})

	body, _ := json.Marshal(map[string]interface{}{
		"citizen_name": "Asha Patel",
	})
	w := doRequest(router, http.MethodPost, "/api/complaints", body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestSubmitComplaintAcceptsZeroCoordinates(t *testing.T) {
	router, _ := newTestRouter(t, &scriptedVision{})

	// (0, 0) is a legitimate coordinate pair and must not trip the
	// required-field binding.
	body, _ := json.Marshal(map[string]interface{}{
		"citizen_name":  "Asha Patel",
		"citizen_phone": "9876543210",
		"issue_type":    "pothole",
		"latitude":      0.0,
		"longitude":     0.0,
		"address":       "Null Island jetty",
		"photo_base64":  base64.StdEncoding.EncodeToString([]byte("jpeg-bytes")),
	})
	w := doRequest(router, http.MethodPost, "/api/complaints", body)
	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201 (body = %s)", w.Code, w.Body.String())
	}
}

func TestSubmitComplaintRejectsBadBase64(t *testing.T) {
	router, _ := newTestRouter(t, &scriptedVision{})

	body, _ := json.Marshal(map[string]interface{}{
		"citizen_name":  "Asha Patel",
		"citizen_phone": "9876543210",
		"issue_type":    "pothole",
		"latitude":      21.0710,
		"longitude":     73.0740,
		"address":       "Near bus depot, Valod",
		"photo_base64":  "%%% not base64 %%%",
	})
	w := doRequest(router, http.MethodPost, "/api/complaints", body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestSubmitComplaintVisionUnavailable(t *testing.T) {
	router, _ := newTestRouter(t, &scriptedVision{err: fmt.Errorf("upstream down")})

	w := doRequest(router, http.MethodPost, "/api/complaints", submitBody())
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestSubmitComplaintInvalidAssessment(t *testing.T) {
	router, _ := newTestRouter(t, &scriptedVision{err: errors.NewInvalidAssessment("severity 14 outside 1-10")})

	w := doRequest(router, http.MethodPost, "/api/complaints", submitBody())
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
}

func TestGetComplaint(t *testing.T) {
	router, _ := newTestRouter(t, &scriptedVision{})

	w := doRequest(router, http.MethodPost, "/api/complaints", submitBody())
	var created complaint.Complaint
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}

	w = doRequest(router, http.MethodGet, "/api/complaints/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	w = doRequest(router, http.MethodGet, "/api/complaints/JAN-MISSING1", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown ID status = %d, want 404", w.Code)
	}
}

func TestTransitionComplaint(t *testing.T) {
	router, _ := newTestRouter(t, &scriptedVision{})

	w := doRequest(router, http.MethodPost, "/api/complaints", submitBody())
	var created complaint.Complaint
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}

	body, _ := json.Marshal(map[string]string{
		"to":    "UNDER_REVIEW",
		"actor": "clerk-01",
		"note":  "taking a look",
	})
	w = doRequest(router, http.MethodPost, "/api/complaints/"+created.ID+"/transition", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var updated complaint.Complaint
	if err := json.Unmarshal(w.Body.Bytes(), &updated); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if updated.Status != complaint.StatusUnderReview {
		t.Errorf("status = %s", updated.Status)
	}
	if len(updated.History) != 2 {
		t.Errorf("history length = %d, want 2", len(updated.History))
	}

	// Skipping the lifecycle is a conflict.
	body, _ = json.Marshal(map[string]string{"to": "RESOLVED", "actor": "clerk-01"})
	w = doRequest(router, http.MethodPost, "/api/complaints/"+created.ID+"/transition", body)
	if w.Code != http.StatusConflict {
		t.Errorf("invalid transition status = %d, want 409", w.Code)
	}

	// Unknown target status is a client error.
	body, _ = json.Marshal(map[string]string{"to": "ESCALATED", "actor": "clerk-01"})
	w = doRequest(router, http.MethodPost, "/api/complaints/"+created.ID+"/transition", body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown status = %d, want 400", w.Code)
	}
}

func TestListComplaints(t *testing.T) {
	router, _ := newTestRouter(t, &scriptedVision{})

	for i := 0; i < 3; i++ {
		if w := doRequest(router, http.MethodPost, "/api/complaints", submitBody()); w.Code != http.StatusCreated {
			t.Fatalf("submit %d failed: %d", i, w.Code)
		}
	}

	w := doRequest(router, http.MethodGet, "/api/complaints", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var list struct {
		Complaints []complaint.Complaint `json:"complaints"`
		Count      int                   `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if list.Count != 3 || len(list.Complaints) != 3 {
		t.Errorf("count = %d, complaints = %d", list.Count, len(list.Complaints))
	}

	w = doRequest(router, http.MethodGet, "/api/complaints?status=SUBMITTED&min_risk=40", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("filtered status = %d", w.Code)
	}

	w = doRequest(router, http.MethodGet, "/api/complaints?status=NONSENSE", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad status filter = %d, want 400", w.Code)
	}

	w = doRequest(router, http.MethodGet, "/api/complaints?min_risk=very", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad min_risk filter = %d, want 400", w.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, &scriptedVision{})

	if w := doRequest(router, http.MethodPost, "/api/complaints", submitBody()); w.Code != http.StatusCreated {
		t.Fatalf("submit failed: %d", w.Code)
	}

	w := doRequest(router, http.MethodGet, "/api/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var stats store.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if stats.Total != 1 {
		t.Errorf("total = %d, want 1", stats.Total)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, &scriptedVision{})

	w := doRequest(router, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var status health.Status
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if status.Status != "healthy" {
		t.Errorf("health status = %q", status.Status)
	}
}
