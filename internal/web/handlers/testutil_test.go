package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/detect"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/recognize"
	"github.com/kozaktomas/face-attendance/internal/storage"
)

// fakeRecognizer returns a canned recognition outcome.
type fakeRecognizer struct {
	outcome *recognize.Outcome
	err     error
	gotData []byte
}

func (f *fakeRecognizer) Recognize(_ context.Context, imageData []byte) (*recognize.Outcome, error) {
	f.gotData = imageData
	if f.err != nil {
		return nil, f.err
	}
	return f.outcome, nil
}

// fakeAttendance records inserts and serves canned list results.
type fakeAttendance struct {
	events    []*storage.AttendanceEvent
	unknown   []*storage.UnknownFace
	insertErr error

	listed    []storage.AttendanceEvent
	listErr   error
	gotFilter storage.ListFilter
}

func (f *fakeAttendance) Insert(_ context.Context, event *storage.AttendanceEvent) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAttendance) InsertUnknown(_ context.Context, face *storage.UnknownFace) error {
	f.unknown = append(f.unknown, face)
	return nil
}

func (f *fakeAttendance) List(_ context.Context, filter storage.ListFilter) ([]storage.AttendanceEvent, error) {
	f.gotFilter = filter
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listed, nil
}

// fakeEncoder returns a canned embedding and face count.
type fakeEncoder struct {
	embedding []float32
	faces     int
	err       error
	gotOpts   detect.Options
}

func (f *fakeEncoder) Encode(_ context.Context, _ []byte, opts detect.Options) ([]float32, int, error) {
	f.gotOpts = opts
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.embedding, f.faces, nil
}

// fakeIdentityRepo records identity writes.
type fakeIdentityRepo struct {
	added     map[string]string // id -> display name
	addErr    error
	removeErr error
	loadErr   error
	loaded    []gallery.Identity
}

func (f *fakeIdentityRepo) Add(_ context.Context, id, displayName string, _ []float32) error {
	if f.addErr != nil {
		return f.addErr
	}
	if f.added == nil {
		f.added = make(map[string]string)
	}
	f.added[id] = displayName
	return nil
}

func (f *fakeIdentityRepo) Remove(_ context.Context, id string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	delete(f.added, id)
	return nil
}

func (f *fakeIdentityRepo) LoadGallery(_ context.Context, store *gallery.Store) error {
	if f.loadErr != nil {
		return f.loadErr
	}
	return store.Reload(f.loaded)
}

// multipartImageRequest builds a POST with an image file plus extra fields.
func multipartImageRequest(t *testing.T, path string, imageData []byte, fields map[string]string) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if imageData != nil {
		part, err := writer.CreateFormFile("image", "frame.jpg")
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		part.Write(imageData)
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	writer.Close()

	req := httptest.NewRequest("POST", path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse decodes the recorder body into target
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
