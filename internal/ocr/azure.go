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
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bill-advisor/internal/resilience"
)

const (
	azureAPIVersion = "2024-11-30"
	azureReadModel  = "prebuilt-read"
)

// AzureRead extracts text with the Azure Document Intelligence prebuilt-read
// model. The analyze call is asynchronous: submit, then poll the
// Operation-Location URL until the result is ready.
type AzureRead struct {
	endpoint  string
	apiKey    string
	client    *http.Client
	retry     resilience.RetryConfig
	pollEvery time.Duration
	timeout   time.Duration
}

// NewAzureRead creates an AzureRead extractor for the given resource endpoint.
func NewAzureRead(endpoint, apiKey string) *AzureRead {
	return &AzureRead{
		endpoint:  strings.TrimRight(endpoint, "/"),
		apiKey:    apiKey,
		client:    &http.Client{Timeout: 60 * time.Second},
		retry:     resilience.DefaultRetryConfig(),
		pollEvery: time.Second,
		timeout:   2 * time.Minute,
	}
}

type azureAnalyzeRequest struct {
	Base64Source string `json:"base64Source"`
}

type azureOperation struct {
	Status        string `json:"status"` // notStarted | running | succeeded | failed
	AnalyzeResult struct {
		Content string `json:"content"`
	} `json:"analyzeResult"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ExtractText implements Extractor.
func (a *AzureRead) ExtractText(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "ocr: read document %s", path)
	}
	body, err := json.Marshal(azureAnalyzeRequest{Base64Source: base64.StdEncoding.EncodeToString(data)})
	if err != nil {
		return "", eris.Wrap(err, "ocr: marshal azure request")
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	cfg := a.retry
	cfg.OnRetry = resilience.RetryLogger("azure", "analyze")
	opURL, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (string, error) {
		return a.submit(ctx, body)
	})
	if err != nil {
		return "", err
	}

	ticker := time.NewTicker(a.pollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", eris.Wrap(ctx.Err(), "ocr: azure analyze did not finish")
		case <-ticker.C:
		}

		op, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*azureOperation, error) {
			return a.poll(ctx, opURL)
		})
		if err != nil {
			return "", err
		}
		switch op.Status {
		case "succeeded":
			return op.AnalyzeResult.Content, nil
		case "failed":
			msg := "unknown error"
			if op.Error != nil {
				msg = op.Error.Code + ": " + op.Error.Message
			}
			return "", eris.Errorf("ocr: azure analyze failed: %s", msg)
		}
	}
}

func (a *AzureRead) submit(ctx context.Context, body []byte) (string, error) {
	url := a.endpoint + "/documentintelligence/documentModels/" + azureReadModel +
		":analyze?api-version=" + azureAPIVersion
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", eris.Wrap(err, "ocr: create azure request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "ocr: azure analyze call")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusAccepted {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", httpStatusError("azure", resp.StatusCode, raw)
	}
	opURL := resp.Header.Get("Operation-Location")
	if opURL == "" {
		return "", eris.New("ocr: azure reply has no Operation-Location")
	}
	return opURL, nil
}

func (a *AzureRead) poll(ctx context.Context, opURL string) (*azureOperation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "ocr: create azure poll request")
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "ocr: azure poll call")
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "ocr: read azure poll response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, httpStatusError("azure", resp.StatusCode, raw)
	}

	var op azureOperation
	if err := json.Unmarshal(raw, &op); err != nil {
		return nil, eris.Wrap(err, "ocr: unmarshal azure operation")
	}
	return &op, nil
}
