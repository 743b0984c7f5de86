package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"
)

// HTTPOCR calls a text-recognition service: a multipart POST {endpoint}/ocr
// carrying the image in the "file" field, answered by
// {"text": "...", "error": "..."}.
type HTTPOCR struct {
	endpoint string
	client   *http.Client
}

// NewHTTPOCR returns a client for the service at endpoint.
func NewHTTPOCR(endpoint string, timeout time.Duration) *HTTPOCR {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPOCR{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
	}
}

type ocrResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// Recognize returns the text found in the image.
func (o *HTTPOCR) Recognize(ctx context.Context, name string, data []byte) (string, error) {
	body, ctype, err := multipartImage(name, data)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/ocr", body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", ctype)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling OCR service: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("OCR service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var result ocrResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("OCR error: %s", result.Error)
	}
	return result.Text, nil
}

// multipartImage encodes data as the "file" part of a form.
func multipartImage(name string, data []byte) (*bytes.Buffer, string, error) {
	ctype := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if ctype == "" {
		ctype = "application/octet-stream"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(name)))
	h.Set("Content-Type", ctype)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("encoding image: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("encoding image: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("encoding image: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
