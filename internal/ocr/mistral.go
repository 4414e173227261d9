package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bill-advisor/internal/resilience"
)

const (
	mistralOCREndpoint  = "https://api.mistral.ai/v1/ocr"
	defaultMistralModel = "mistral-ocr-latest"
)

// MistralOCR extracts text from PDFs and bill photos using the Mistral OCR API.
type MistralOCR struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
	retry    resilience.RetryConfig
}

// NewMistralOCR creates a MistralOCR extractor. If model is empty, the default is used.
func NewMistralOCR(apiKey, model string) *MistralOCR {
	if model == "" {
		model = defaultMistralModel
	}
	return &MistralOCR{
		apiKey:   apiKey,
		model:    model,
		endpoint: mistralOCREndpoint,
		client:   &http.Client{},
		retry:    resilience.DefaultRetryConfig(),
	}
}

type mistralOCRRequest struct {
	Model    string             `json:"model"`
	Document mistralOCRDocument `json:"document"`
}

// mistralOCRDocument is either a document_url or an image_url payload.
type mistralOCRDocument struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

type mistralOCRResponse struct {
	Pages []mistralOCRPage `json:"pages"`
}

type mistralOCRPage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

// ExtractText reads a document, sends it to Mistral OCR, and returns the
// page markdown joined by blank lines.
func (m *MistralOCR) ExtractText(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "ocr: read document %s", path)
	}

	mime := mimeType(path)
	dataURL := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)

	doc := mistralOCRDocument{Type: "document_url", DocumentURL: dataURL}
	if strings.HasPrefix(mime, "image/") {
		doc = mistralOCRDocument{Type: "image_url", ImageURL: dataURL}
	}

	bodyBytes, err := json.Marshal(mistralOCRRequest{Model: m.model, Document: doc})
	if err != nil {
		return "", eris.Wrap(err, "ocr: marshal mistral request")
	}

	cfg := m.retry
	cfg.OnRetry = resilience.RetryLogger("mistral", "ocr")
	ocrResp, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*mistralOCRResponse, error) {
		return m.post(ctx, bodyBytes)
	})
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for i, page := range ocrResp.Pages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(page.Markdown)
	}
	return sb.String(), nil
}

func (m *MistralOCR) post(ctx context.Context, body []byte) (*mistralOCRResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "ocr: create mistral request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "ocr: mistral API call")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "ocr: read mistral response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, httpStatusError("mistral", resp.StatusCode, respBody)
	}

	var out mistralOCRResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, eris.Wrap(err, "ocr: unmarshal mistral response")
	}
	return &out, nil
}
