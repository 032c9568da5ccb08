package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
)

const defaultDetectorURL = "http://localhost:8000"

// Client talks to the face detector/encoder service over HTTP.
type Client struct {
	baseURL      string
	maxImageSize int // longest image edge before uploads get downscaled (0 = never)
	client       *http.Client
}

// NewClient creates a detector client. maxImageSize caps the longest edge of
// uploaded images; pass 0 to upload originals.
func NewClient(baseURL string, maxImageSize int) *Client {
	if baseURL == "" {
		baseURL = defaultDetectorURL
	}
	return &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		maxImageSize: maxImageSize,
		client:       &http.Client{},
	}
}

// Detect locates faces in the image and computes one embedding per face.
// An image with no faces yields a successful empty result; only undecodable
// input fails, with ErrDecode.
func (c *Client) Detect(ctx context.Context, imageData []byte, opts Options) (*Result, error) {
	opts = opts.Normalize()

	prepared, err := PrepareImage(imageData, c.maxImageSize)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("model", opts.Mode)
	query.Set("jitters", strconv.Itoa(opts.NumJitters))
	query.Set("encoder", opts.EncoderModel)

	body, err := c.postMultipartImage(ctx, "/detect/faces?"+query.Encode(), prepared)
	if err != nil {
		return nil, err
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if result.FacesCount == 0 {
		result.FacesCount = len(result.Faces)
	}
	return &result, nil
}

// Encode computes the embedding for an enrollment photo that must contain
// exactly one face. Returns the face count alongside so callers can reject
// photos with zero or multiple faces.
func (c *Client) Encode(ctx context.Context, imageData []byte, opts Options) ([]float32, int, error) {
	result, err := c.Detect(ctx, imageData, opts)
	if err != nil {
		return nil, 0, err
	}
	if len(result.Faces) != 1 {
		return nil, len(result.Faces), nil
	}
	return result.Faces[0].Embedding, 1, nil
}

// postMultipartImage constructs a multipart form with the image data and
// posts it to the given endpoint. The part carries an explicit Content-Type
// based on magic byte detection.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnprocessableEntity {
		// The service rejects payloads its decoders cannot read.
		return nil, fmt.Errorf("%w: %s", ErrDecode, string(body))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}
