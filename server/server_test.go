package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"codeberg.org/go-pdf/fpdf"
	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/lvillar/docfill"
	"github.com/lvillar/docfill/fill"
	"github.com/lvillar/docfill/render"
	"github.com/lvillar/docfill/server"
	"github.com/lvillar/docfill/store"
	"golang.org/x/time/rate"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

const invoiceHTML = `<html><head><style>:root { --primary-color: #000000; }</style></head><body>
<h1 id="client"></h1>
<table><tbody><tr><td></td><td></td><td></td><td></td></tr></tbody></table>
<p data-field="total_ttc"></p>
</body></html>`

var fakePDF = []byte("%PDF-1.4 rendered")

type env struct {
	templates *store.Templates
	handler   http.Handler
}

type setup struct {
	renderer render.Renderer
	objects  store.ObjectStore
	cfg      server.Config
}

func newEnv(t *testing.T, opts ...func(*setup)) *env {
	t.Helper()
	ts, err := store.NewTemplates(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	objs, err := store.NewDirObjects(t.TempDir(), "http://files.local/artifacts")
	if err != nil {
		t.Fatal(err)
	}
	st := &setup{
		renderer: render.RendererFunc(func(context.Context, string, render.Options) ([]byte, error) {
			return fakePDF, nil
		}),
		objects: objs,
		cfg:     server.Config{RequestTimeout: 5 * time.Second},
	}
	for _, o := range opts {
		o(st)
	}

	svc := fill.New(ts, fill.WithRenderer(st.renderer), fill.WithObjectStore(st.objects))
	return &env{
		templates: ts,
		handler:   server.New(ts, svc, st.objects, st.cfg, nil).Handler(),
	}
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *env) upload(t *testing.T, name string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return m
}

func onePagePDF(t *testing.T) []byte {
	t.Helper()
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.AddPage()
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func invoiceRequest() map[string]any {
	return map[string]any{
		"templateName": "invoice.html",
		"fields": map[string]any{
			"client": "ACME",
			"prestations": []any{
				map[string]any{"description": "Audit", "quantity": 2, "price": 100},
			},
		},
	}
}

func TestHealth(t *testing.T) {
	rec := newEnv(t).do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK || decode(t, rec)["status"] != "ok" {
		t.Errorf("healthz = %d %s", rec.Code, rec.Body)
	}
}

func TestUploadAndList(t *testing.T) {
	e := newEnv(t)

	rec := e.upload(t, "invoice.html", []byte(invoiceHTML))
	if rec.Code != http.StatusOK {
		t.Fatalf("upload = %d %s", rec.Code, rec.Body)
	}
	if got := decode(t, rec)["filename"]; got != "invoice.html" {
		t.Errorf("filename = %v", got)
	}

	if rec := e.upload(t, "notes.txt", []byte("x")); rec.Code != http.StatusBadRequest {
		t.Errorf("txt upload = %d, want 400", rec.Code)
	}

	rec = e.do(t, http.MethodGet, "/api/upload", nil)
	body := decode(t, rec)
	if diff := cmp.Diff([]any{"invoice.html"}, body["files"]); diff != "" {
		t.Errorf("files (-want +got):\n%s", diff)
	}
}

func TestZonesRoutes(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/api/zones?template=contrat.pdf", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"zones":[]`) {
		t.Errorf("absent zones = %d %s", rec.Code, rec.Body)
	}
	if rec := e.do(t, http.MethodGet, "/api/zones", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("missing template param = %d, want 400", rec.Code)
	}

	notArray := map[string]any{"templateName": "contrat.pdf", "zones": map[string]any{"x": 1}}
	if rec := e.do(t, http.MethodPost, "/api/zones", notArray); rec.Code != http.StatusBadRequest {
		t.Errorf("non-array zones = %d, want 400", rec.Code)
	}

	valid := map[string]any{"templateName": "contrat.pdf", "zones": []any{
		map[string]any{"name": "client", "x": 10, "y": 10, "width": 100, "height": 20, "page": 1},
	}}
	rec = e.do(t, http.MethodPost, "/api/zones", valid)
	if rec.Code != http.StatusOK || decode(t, rec)["zonesCount"] != float64(1) {
		t.Fatalf("save zones = %d %s", rec.Code, rec.Body)
	}

	set, found, err := e.templates.ZoneSet("contrat.pdf")
	if err != nil || !found || len(set.Zones) != 1 || set.Zones[0].ID == "" {
		t.Errorf("stored set = %+v, %v, %v", set, found, err)
	}
}

func TestVariablesRoutes(t *testing.T) {
	e := newEnv(t)
	body := map[string]any{"templateName": "invoice.html", "variables": []any{
		map[string]any{"name": "client", "selector": "#client", "type": "text"},
	}}
	rec := e.do(t, http.MethodPost, "/api/html-variables", body)
	if rec.Code != http.StatusOK || decode(t, rec)["variablesCount"] != float64(1) {
		t.Fatalf("save variables = %d %s", rec.Code, rec.Body)
	}
	rec = e.do(t, http.MethodGet, "/api/html-variables?template=invoice.html", nil)
	if !strings.Contains(rec.Body.String(), `"selector":"#client"`) {
		t.Errorf("variables = %s", rec.Body)
	}
}

func TestDocuments(t *testing.T) {
	e := newEnv(t)
	if err := e.templates.Save("invoice.html", []byte(invoiceHTML)); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path string
		code int
	}{
		{"/documents/invoice.html", http.StatusOK},
		{"/documents/..invoice.html", http.StatusBadRequest},
		{"/documents/../etc/passwd", http.StatusBadRequest},
		{"/documents/..%2Fetc%2Fpasswd", http.StatusBadRequest},
		{"/documents/a/b.pdf", http.StatusBadRequest},
		{"/documents/notes.txt", http.StatusBadRequest},
		{"/documents/absent.pdf", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := e.do(t, http.MethodGet, tt.path, nil)
		if rec.Code != tt.code {
			t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.code)
		}
		if tt.code == http.StatusBadRequest && decode(t, rec)["error"] == nil {
			t.Errorf("GET %s: missing error envelope: %s", tt.path, rec.Body)
		}
	}

	rec := e.do(t, http.MethodGet, "/documents/invoice.html", nil)
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q", ct)
	}
}

func TestWebhookValidation(t *testing.T) {
	e := newEnv(t)
	tests := []struct {
		name string
		body any
		code int
	}{
		{"no template", map[string]any{"fields": map[string]any{"a": 1}}, http.StatusBadRequest},
		{"no fields", map[string]any{"templateName": "x.pdf", "fields": map[string]any{}}, http.StatusBadRequest},
		{"nested object", `{"templateName":"x.pdf","fields":{"a":{"b":1}}}`, http.StatusBadRequest},
		{"malformed", `{"templateName":`, http.StatusBadRequest},
		{"missing template", map[string]any{"templateName": "absent.pdf", "fields": map[string]any{"a": 1}}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, http.MethodPost, "/api/webhook/fill-pdf", tt.body)
			if rec.Code != tt.code {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.code, rec.Body)
			}
			if _, ok := decode(t, rec)["error"]; !ok {
				t.Errorf("missing error envelope: %s", rec.Body)
			}
		})
	}
}

func TestFillPDFCustom(t *testing.T) {
	e := newEnv(t)
	if err := e.templates.Save("contrat.pdf", onePagePDF(t)); err != nil {
		t.Fatal(err)
	}
	err := e.templates.SaveZones(docfill.ZoneSet{TemplateName: "contrat.pdf", Zones: []docfill.Zone{
		{ID: "1", Name: "client", X: 10, Y: 10, Width: 100, Height: 20, Page: 1},
	}})
	if err != nil {
		t.Fatal(err)
	}

	rec := e.do(t, http.MethodPost, "/api/webhook/fill-pdf-custom", map[string]any{
		"templateName": "contrat.pdf",
		"fields":       map[string]any{"client": "ACME", "unused": "x"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d %s", rec.Code, rec.Body)
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="filled_contrat.pdf"` {
		t.Errorf("disposition = %q", got)
	}
	if got := rec.Header().Get("X-Fields-Filled"); got != "1" {
		t.Errorf("filled header = %q", got)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Error("body is not a PDF")
	}
}

func TestFillHTMLAuto(t *testing.T) {
	e := newEnv(t)
	if err := e.templates.Save("invoice.html", []byte(invoiceHTML)); err != nil {
		t.Fatal(err)
	}
	rec := e.do(t, http.MethodPost, "/api/webhook/fill-html-auto", invoiceRequest())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d %s", rec.Code, rec.Body)
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="facture_invoice.pdf"` {
		t.Errorf("disposition = %q", got)
	}
	if !bytes.Equal(rec.Body.Bytes(), fakePDF) {
		t.Errorf("body = %q", rec.Body)
	}
}

func TestFillHTMLAutoUpload(t *testing.T) {
	e := newEnv(t)
	if err := e.templates.Save("invoice.html", []byte(invoiceHTML)); err != nil {
		t.Fatal(err)
	}
	rec := e.do(t, http.MethodPost, "/api/webhook/fill-html-auto-upload", invoiceRequest())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d %s", rec.Code, rec.Body)
	}
	body := decode(t, rec)
	url, _ := body["pdfUrl"].(string)
	if body["fileName"] != "facture_invoice.pdf" || !strings.HasPrefix(url, "http://files.local/artifacts/") {
		t.Fatalf("body = %v", body)
	}

	key := url[strings.LastIndex(url, "/")+1:]
	rec = e.do(t, http.MethodGet, "/artifacts/"+key, nil)
	if rec.Code != http.StatusOK || !bytes.Equal(rec.Body.Bytes(), fakePDF) {
		t.Errorf("artifact = %d %q", rec.Code, rec.Body)
	}
}

type failingObjects struct{}

func (failingObjects) Put(context.Context, string, []byte) (string, error) {
	return "", errors.New("bucket unavailable")
}

func (failingObjects) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("bucket unavailable")
}

func TestFillHTMLAutoUploadFallsBack(t *testing.T) {
	e := newEnv(t, func(s *setup) { s.objects = failingObjects{} })
	if err := e.templates.Save("invoice.html", []byte(invoiceHTML)); err != nil {
		t.Fatal(err)
	}
	rec := e.do(t, http.MethodPost, "/api/webhook/fill-html-auto-upload", invoiceRequest())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type = %q, want the raw PDF", ct)
	}
	if !bytes.Equal(rec.Body.Bytes(), fakePDF) {
		t.Errorf("body = %q", rec.Body)
	}
}

func TestRenderTimeout(t *testing.T) {
	slow := render.RendererFunc(func(ctx context.Context, _ string, _ render.Options) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	e := newEnv(t, func(s *setup) { s.renderer = render.Bounded(slow, 1, 20*time.Millisecond) })
	if err := e.templates.Save("invoice.html", []byte(invoiceHTML)); err != nil {
		t.Fatal(err)
	}

	rec := e.do(t, http.MethodPost, "/api/webhook/fill-html-auto", invoiceRequest())
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d %s", rec.Code, rec.Body)
	}
	if decode(t, rec)["retryable"] != true {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestRequestDeadline(t *testing.T) {
	e := newEnv(t, func(s *setup) { s.cfg.RequestTimeout = time.Nanosecond })
	if err := e.templates.Save("contrat.pdf", onePagePDF(t)); err != nil {
		t.Fatal(err)
	}
	err := e.templates.SaveZones(docfill.ZoneSet{TemplateName: "contrat.pdf", Zones: []docfill.Zone{
		{ID: "1", Name: "client", X: 10, Y: 10, Width: 100, Height: 20, Page: 1},
	}})
	if err != nil {
		t.Fatal(err)
	}

	rec := e.do(t, http.MethodPost, "/api/webhook/fill-pdf-custom", map[string]any{
		"templateName": "contrat.pdf",
		"fields":       map[string]any{"client": "ACME"},
	})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d %s", rec.Code, rec.Body)
	}
	body := decode(t, rec)
	if body["retryable"] != true || body["error"] != "request timed out" {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestWebhookRateLimit(t *testing.T) {
	e := newEnv(t, func(s *setup) {
		s.cfg.WebhookRate = rate.Every(time.Hour)
		s.cfg.WebhookBurst = 1
	})
	path := "/api/webhook/fill-pdf?template=absent.pdf"
	if rec := e.do(t, http.MethodGet, path, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("first call = %d", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, path, nil); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second call = %d, want 429", rec.Code)
	}
	// Management routes are not limited.
	if rec := e.do(t, http.MethodGet, "/api/upload", nil); rec.Code != http.StatusOK {
		t.Errorf("list = %d", rec.Code)
	}
}
