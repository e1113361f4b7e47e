package api

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go-sales-insights/internal/api/handler"
	"go-sales-insights/internal/auth"
	"go-sales-insights/internal/pipeline"
	"go-sales-insights/internal/session"
	"go-sales-insights/internal/store"
	"go-sales-insights/pkg/router"
	"go-sales-insights/pkg/utils"

	"github.com/sirupsen/logrus"
)

const salesCSV = "OrderDate,Region,Product,Qty,Price,Notes\n" +
	"2024-01-05,East,Apple,2,10,promo\n" +
	"2024-01-20,West,Banana,1,5,\n" +
	"2024-02-11,East,Banana,4,2,promo\n"

const maxUpload = 1 << 20

type testServer struct {
	t      *testing.T
	router *router.Router
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)

	h := &handler.Handler{
		Sessions: session.NewManager(session.Options{
			Summary: pipeline.DefaultSummaryOptions(),
			History: db,
			Logger:  log,
		}),
		Auth:           auth.NewService(db, "test-secret", time.Hour),
		History:        db,
		Outputs:        utils.NewOutputManager(t.TempDir()),
		Log:            log,
		MaxUploadBytes: maxUpload,
	}
	r := router.New(log)
	r.SetColor(false)
	RegisterRoutes(r, h)
	return &testServer{t: t, router: r}
}

func (s *testServer) do(method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	s.t.Helper()
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) json(method, path, token string, v interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		s.t.Fatal(err)
	}
	return s.do(method, path, token, bytes.NewReader(data), "application/json")
}

func (s *testServer) upload(path, token, filename, content string) *httptest.ResponseRecorder {
	s.t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		s.t.Fatal(err)
	}
	fw.Write([]byte(content))
	mw.Close()
	return s.do(http.MethodPost, path, token, &body, mw.FormDataContentType())
}

func (s *testServer) login(user string) string {
	s.t.Helper()
	creds := map[string]string{"username": user, "password": "pw-" + user}
	if rec := s.json(http.MethodPost, "/api/v1/auth/register", "", creds); rec.Code != http.StatusCreated {
		s.t.Fatalf("register %s: %d %s", user, rec.Code, rec.Body)
	}
	rec := s.json(http.MethodPost, "/api/v1/auth/login", "", creds)
	if rec.Code != http.StatusOK {
		s.t.Fatalf("login %s: %d %s", user, rec.Code, rec.Body)
	}
	var tok handler.TokenResponse
	json.Unmarshal(rec.Body.Bytes(), &tok)
	return tok.Token
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestAuthEndpoints(t *testing.T) {
	srv := newTestServer(t)
	creds := map[string]string{"username": "alice", "password": "pw"}

	tests := []struct {
		name string
		path string
		body interface{}
		want int
	}{
		{"register", "/api/v1/auth/register", creds, http.StatusCreated},
		{"duplicate", "/api/v1/auth/register", creds, http.StatusConflict},
		{"missing password", "/api/v1/auth/register", map[string]string{"username": "bob"}, http.StatusBadRequest},
		{"wrong password", "/api/v1/auth/login", map[string]string{"username": "alice", "password": "x"}, http.StatusUnauthorized},
		{"login", "/api/v1/auth/login", creds, http.StatusOK},
	}
	for _, tt := range tests {
		if rec := srv.json(http.MethodPost, tt.path, "", tt.body); rec.Code != tt.want {
			t.Fatalf("%s: status = %d, want %d (%s)", tt.name, rec.Code, tt.want, rec.Body)
		}
	}

	if rec := srv.do(http.MethodPost, "/api/v1/auth/login", "", strings.NewReader("{"), "application/json"); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json: %d", rec.Code)
	}
	if rec := srv.do(http.MethodPost, "/api/v1/sessions", "", nil, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated: %d", rec.Code)
	}
	if rec := srv.do(http.MethodGet, "/api/v1/health", "", nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("health: %d", rec.Code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	srv := newTestServer(t)
	token := srv.login("alice")

	rec := srv.do(http.MethodPost, "/api/v1/sessions", token, nil, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body)
	}
	var info session.Info
	decode(t, rec, &info)
	base := "/api/v1/sessions/" + info.ID

	// Order of operations
	if rec := srv.json(http.MethodPost, base+"/prepare", token, map[string]interface{}{"mapping": map[string]string{}}); rec.Code != http.StatusConflict {
		t.Fatalf("prepare before upload: %d", rec.Code)
	}
	if rec := srv.json(http.MethodPost, base+"/filter", token, map[string]interface{}{}); rec.Code != http.StatusConflict {
		t.Fatalf("filter before prepare: %d", rec.Code)
	}
	if rec := srv.upload(base+"/upload", token, "notes.txt", "hello"); rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("txt upload: %d", rec.Code)
	}

	rec = srv.upload(base+"/upload", token, "sales.csv", salesCSV)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload: %d %s", rec.Code, rec.Body)
	}
	decode(t, rec, &info)
	if info.RawRows != 3 || info.Proposed["date"] != "OrderDate" {
		t.Fatalf("upload info = %+v", info)
	}

	bad := map[string]interface{}{"mapping": map[string]string{"revenue": "Missing"}}
	if rec := srv.json(http.MethodPost, base+"/prepare", token, bad); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad mapping: %d", rec.Code)
	}

	mapping := map[string]interface{}{"mapping": map[string]string{
		"date": "OrderDate", "region": "Region", "product": "Product", "quantity": "Qty", "unit_price": "Price",
	}}
	rec = srv.json(http.MethodPost, base+"/prepare", token, mapping)
	if rec.Code != http.StatusOK {
		t.Fatalf("prepare: %d %s", rec.Code, rec.Body)
	}
	decode(t, rec, &info)
	if !info.Prepared || info.RevenueSource != pipeline.RevenueDerived || info.FilteredRows != 3 {
		t.Fatalf("prepare info = %+v", info)
	}

	// Filtering
	rec = srv.json(http.MethodPost, base+"/filter", token, map[string]interface{}{
		"categories": map[string][]string{"region": {"East"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("filter: %d %s", rec.Code, rec.Body)
	}
	var view struct {
		FilteredRows int `json:"filtered_rows"`
		Summary      struct {
			KPIs struct {
				TotalRevenue float64 `json:"total_revenue"`
				Orders       int     `json:"orders"`
			} `json:"kpis"`
			Trend []struct {
				Month   string  `json:"month"`
				Revenue float64 `json:"revenue"`
			} `json:"trend"`
		} `json:"summary"`
		Downloads map[string]string `json:"downloads"`
	}
	decode(t, rec, &view)
	if view.FilteredRows != 2 || view.Summary.KPIs.TotalRevenue != 28 || len(view.Summary.Trend) != 2 {
		t.Fatalf("view = %+v", view)
	}
	if view.Downloads["filtered.csv"] != base+"/export/filtered.csv" {
		t.Fatalf("downloads = %v", view.Downloads)
	}

	if rec := srv.json(http.MethodPost, base+"/filter", token, map[string]interface{}{"from": "2024-03-01", "to": "2024-01-01"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("inverted range: %d", rec.Code)
	}
	if rec := srv.do(http.MethodGet, base+"/summary", token, nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("summary: %d", rec.Code)
	}

	rec = srv.do(http.MethodGet, base+"/counts?column=Notes&n=1", token, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("counts: %d %s", rec.Code, rec.Body)
	}
	var counts []struct {
		Value string `json:"value"`
		Count int    `json:"count"`
	}
	decode(t, rec, &counts)
	if len(counts) != 1 || counts[0].Value != "promo" || counts[0].Count != 2 {
		t.Fatalf("counts = %+v", counts)
	}
	if rec := srv.do(http.MethodGet, base+"/counts?column=Nope", token, nil, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown count column: %d", rec.Code)
	}

	// Charts and exports
	if rec := srv.do(http.MethodPut, base+"/charts/scatter", token, strings.NewReader("png"), "image/png"); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown chart: %d", rec.Code)
	}
	if rec := srv.do(http.MethodPut, base+"/charts/bar_region", token, bytes.NewReader(make([]byte, maxUpload+1)), "image/png"); rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized chart: %d", rec.Code)
	}
	if rec := srv.do(http.MethodPut, base+"/charts/bar_region", token, strings.NewReader("png"), "image/png"); rec.Code != http.StatusOK {
		t.Fatalf("chart: %d %s", rec.Code, rec.Body)
	}

	rec = srv.do(http.MethodGet, base+"/export/filtered.csv", token, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("export: %d %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("content type = %s", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, pipeline.FilteredCSVName) {
		t.Fatalf("content disposition = %s", cd)
	}
	rows, err := csv.NewReader(rec.Body).ReadAll()
	if err != nil || len(rows) != 3 {
		t.Fatalf("exported csv rows = %d, %v", len(rows), err)
	}

	for _, a := range []string{"kpi_summary.csv", "charts.zip", "report.xlsx"} {
		if rec := srv.do(http.MethodGet, base+"/export/"+a, token, nil, ""); rec.Code != http.StatusOK || rec.Body.Len() == 0 {
			t.Fatalf("export %s: %d", a, rec.Code)
		}
	}
	if rec := srv.do(http.MethodGet, base+"/export/report.pdf", token, nil, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown artifact: %d", rec.Code)
	}

	// History
	rec = srv.do(http.MethodGet, "/api/v1/uploads", token, nil, "")
	var uploads []struct {
		Filename string `json:"filename"`
		Rows     int    `json:"rows"`
	}
	decode(t, rec, &uploads)
	if len(uploads) != 1 || uploads[0].Filename != "sales.csv" || uploads[0].Rows != 3 {
		t.Fatalf("uploads = %+v", uploads)
	}

	// Teardown
	if rec := srv.do(http.MethodDelete, base, token, nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("delete: %d", rec.Code)
	}
	if rec := srv.do(http.MethodGet, base, token, nil, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: %d", rec.Code)
	}
}

func TestSessionsArePrivate(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.login("alice")
	bob := srv.login("bob")

	var info session.Info
	decode(t, srv.do(http.MethodPost, "/api/v1/sessions", alice, nil, ""), &info)
	base := "/api/v1/sessions/" + info.ID

	if rec := srv.do(http.MethodGet, base, bob, nil, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("bob reads alice's session: %d", rec.Code)
	}
	if rec := srv.upload(base+"/upload", bob, "sales.csv", salesCSV); rec.Code != http.StatusNotFound {
		t.Fatalf("bob uploads into alice's session: %d", rec.Code)
	}

	var list []session.Info
	decode(t, srv.do(http.MethodGet, "/api/v1/sessions", bob, nil, ""), &list)
	if len(list) != 0 {
		t.Fatalf("bob sees %d sessions", len(list))
	}
}

func TestSwaggerMounted(t *testing.T) {
	srv := newTestServer(t)
	rec := srv.do(http.MethodGet, "/swagger/doc.json", "", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/sessions/{id}/filter") {
		t.Fatalf("swagger doc: %d", rec.Code)
	}
}
