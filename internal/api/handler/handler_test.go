package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go-sales-insights/internal/auth"
	"go-sales-insights/internal/model"
	"go-sales-insights/internal/pipeline"
	"go-sales-insights/internal/session"

	"github.com/sirupsen/logrus"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", pipeline.ErrUnsupportedFormat), http.StatusUnsupportedMediaType},
		{model.ErrInvalidMapping, http.StatusBadRequest},
		{pipeline.ErrInvalidSelection, http.StatusBadRequest},
		{pipeline.ErrUnknownChart, http.StatusBadRequest},
		{auth.ErrMissingCredentials, http.StatusBadRequest},
		{session.ErrNotFound, http.StatusNotFound},
		{session.ErrUnknownArtifact, http.StatusNotFound},
		{session.ErrNotPrepared, http.StatusConflict},
		{session.ErrNoData, http.StatusConflict},
		{auth.ErrUserExists, http.StatusConflict},
		{auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{auth.ErrInvalidToken, http.StatusUnauthorized},
		{errTooLarge, http.StatusRequestEntityTooLarge},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestFilterRequestSelection(t *testing.T) {
	req := FilterRequest{
		From:       "2024-01-01",
		Categories: map[string][]string{"region": {"East"}, "product": nil},
		Search:     &model.TextSearch{Column: "Notes", Text: "promo"},
	}
	sel, err := req.Selection()
	if err != nil {
		t.Fatalf("Selection: %v", err)
	}
	if sel.Dates == nil || sel.Dates.From.Format("2006-01-02") != "2024-01-01" || !sel.Dates.To.IsZero() {
		t.Fatalf("dates = %+v", sel.Dates)
	}
	if got := sel.Categories[model.RoleRegion]; len(got) != 1 || got[0] != "East" {
		t.Fatalf("regions = %v", got)
	}
	if got, ok := sel.Categories[model.RoleProduct]; !ok || got == nil || len(got) != 0 {
		t.Fatalf("null product list should select nothing, got %#v", got)
	}
	if sel.Search == nil || sel.Search == req.Search {
		t.Fatal("search not copied")
	}

	bad := []FilterRequest{
		{From: "yesterday"},
		{To: "31/31/2024"},
		{Categories: map[string][]string{"colour": {"red"}}},
	}
	for _, b := range bad {
		if _, err := b.Selection(); !errors.Is(err, pipeline.ErrInvalidSelection) {
			t.Errorf("Selection(%+v) err = %v", b, err)
		}
	}

	empty, err := FilterRequest{}.Selection()
	if err != nil || empty.Dates != nil || empty.Categories != nil || empty.Search != nil {
		t.Fatalf("empty request = %+v, %v", empty, err)
	}
}

type stubAuth struct{}

func (stubAuth) Register(string, string) (*model.User, error) { return nil, nil }
func (stubAuth) Login(string, string) (string, error)         { return "", nil }
func (stubAuth) ParseToken(token string) (string, error) {
	if token == "good" {
		return "alice", nil
	}
	return "", auth.ErrInvalidToken
}

func TestRequireAuth(t *testing.T) {
	log := logrus.New()
	h := &Handler{Auth: stubAuth{}, Log: log}

	var seen string
	protected := h.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		seen = currentUser(r)
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"good token", "Bearer good", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			protected(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusNoContent && seen != "alice" {
				t.Fatalf("user = %q", seen)
			}
		})
	}
}
