package gmailingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/receipts_backend/models"
	"github.com/sirupsen/logrus"
)

// HTTPReceiptParser implements ReceiptParser against the document parsing
// service: it uploads the attachment and gets structured fields back,
// or JSON null when the service cannot read the document.
type HTTPReceiptParser struct {
	baseURL string
	http    *http.Client
	log     *logrus.Logger
}

func NewHTTPReceiptParser(log *logrus.Logger) (*HTTPReceiptParser, error) {
	baseURL := strings.TrimSpace(os.Getenv("PARSER_API_BASE_URL"))
	if baseURL == "" {
		return nil, errors.New("parser api base url is empty")
	}
	return &HTTPReceiptParser{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 120 * time.Second},
		log:     log,
	}, nil
}

func (p *HTTPReceiptParser) Parse(ctx context.Context, filePath string) (*models.ParsedReceiptData, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/receipts/parse", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusNoContent {
		// The service saw the file but could not extract fields.
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("parser api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	var parsed models.ParsedReceiptData
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}
