package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
)

// testImagePNG encodes a small solid PNG for upload tests.
func testImagePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 120, G: 120, B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestClientDetect(t *testing.T) {
	var gotQuery map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/detect/faces" {
			http.NotFound(w, r)
			return
		}
		gotQuery = map[string]string{
			"model":   r.URL.Query().Get("model"),
			"jitters": r.URL.Query().Get("jitters"),
			"encoder": r.URL.Query().Get("encoder"),
		}
		if _, _, err := r.FormFile("file"); err != nil {
			http.Error(w, "missing file part", http.StatusBadRequest)
			return
		}

		emb := make([]float32, 128)
		emb[0] = 0.5
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Result{
			FacesCount: 1,
			Faces: []Face{
				{FaceIndex: 0, Box: Box{Top: 10, Right: 90, Bottom: 80, Left: 20}, Embedding: emb, DetScore: 0.98},
			},
			Model: "dlib_face_recognition_resnet_model_v1",
			Dim:   128,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, 0)
	result, err := client.Detect(context.Background(), testImagePNG(t, 64, 48), Options{
		Mode:         ModeAccurate,
		NumJitters:   3,
		EncoderModel: EncoderSmall,
	})
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if result.FacesCount != 1 || len(result.Faces) != 1 {
		t.Fatalf("expected one face, got count=%d len=%d", result.FacesCount, len(result.Faces))
	}
	face := result.Faces[0]
	if face.Box != (Box{Top: 10, Right: 90, Bottom: 80, Left: 20}) {
		t.Errorf("unexpected bounding box: %+v", face.Box)
	}
	if len(face.Embedding) != 128 {
		t.Errorf("expected 128-dim embedding, got %d", len(face.Embedding))
	}

	if gotQuery["model"] != "cnn" || gotQuery["jitters"] != "3" || gotQuery["encoder"] != "small" {
		t.Errorf("options not forwarded, got %v", gotQuery)
	}
}

func TestClientDetectDefaultsOptions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("model") != "hog" ||
			r.URL.Query().Get("jitters") != "1" ||
			r.URL.Query().Get("encoder") != "large" {
			t.Errorf("expected default options, got %s", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(Result{Faces: []Face{}})
	}))
	defer server.Close()

	client := NewClient(server.URL, 0)
	result, err := client.Detect(context.Background(), testImagePNG(t, 32, 32), Options{})
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if result.FacesCount != 0 {
		t.Errorf("zero faces must be a successful result, got count=%d", result.FacesCount)
	}
}

func TestClientDetectUndecodableInput(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	client := NewClient(server.URL, 0)
	_, err := client.Detect(context.Background(), []byte("definitely not an image"), Options{})
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
	if called {
		t.Error("undecodable input must be rejected before reaching the service")
	}
}

func TestClientDetectServiceDecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unsupported image format", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	// A valid local image that the service still refuses maps to ErrDecode too.
	client := NewClient(server.URL, 0)
	_, err := client.Detect(context.Background(), testImagePNG(t, 16, 16), Options{})
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode from 422 response, got %v", err)
	}
}

func TestClientEncode(t *testing.T) {
	faces := []Face{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Result{FacesCount: len(faces), Faces: faces})
	}))
	defer server.Close()

	client := NewClient(server.URL, 0)
	img := testImagePNG(t, 32, 32)

	t.Run("no face", func(t *testing.T) {
		emb, count, err := client.Encode(context.Background(), img, Options{})
		if err != nil || emb != nil || count != 0 {
			t.Errorf("expected (nil, 0, nil), got (%v, %d, %v)", emb, count, err)
		}
	})

	t.Run("single face", func(t *testing.T) {
		faces = []Face{{Embedding: make([]float32, 128)}}
		emb, count, err := client.Encode(context.Background(), img, Options{})
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		if count != 1 || len(emb) != 128 {
			t.Errorf("expected one 128-dim embedding, got count=%d len=%d", count, len(emb))
		}
	})

	t.Run("multiple faces", func(t *testing.T) {
		faces = []Face{{Embedding: make([]float32, 128)}, {Embedding: make([]float32, 128)}}
		emb, count, err := client.Encode(context.Background(), img, Options{})
		if err != nil || emb != nil || count != 2 {
			t.Errorf("expected (nil, 2, nil), got (%v, %d, %v)", emb, count, err)
		}
	})
}
