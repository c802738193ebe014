package normalize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const extractionPrompt = "Extract brand, base product name, full variant name, category and " +
	"variant details (type, size, flavor, unit) from the retail product text. " +
	"Answer with a single JSON object using the keys brand, baseName, variantName, " +
	"category, image and details."

// AIConfig configures the text-extraction service.
type AIConfig struct {
	APIKey     string
	Endpoint   string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// AINormalizer delegates extraction to an external text-extraction service.
// Without credentials it declines every input so the chain falls through.
type AINormalizer struct {
	cfg      AIConfig
	client   *http.Client
	priority int
}

// NewAINormalizer builds the normalizer with priority 100.
func NewAINormalizer(cfg AIConfig) *AINormalizer {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &AINormalizer{cfg: cfg, client: client, priority: 100}
}

func (n *AINormalizer) Name() string { return "ai" }

func (n *AINormalizer) Priority() int { return n.priority }

// CanHandle requires a configured credential and some text to work on.
func (n *AINormalizer) CanHandle(raw RawProduct) bool {
	if strings.TrimSpace(n.cfg.APIKey) == "" || strings.TrimSpace(n.cfg.Endpoint) == "" {
		return false
	}
	return raw.Describe() != ""
}

type extractionRequest struct {
	Model  string `json:"model,omitempty"`
	Prompt string `json:"prompt"`
	Input  string `json:"input"`
}

// Normalize posts the description and decodes the extracted object.
func (n *AINormalizer) Normalize(ctx context.Context, raw RawProduct) (*NormalizedProduct, error) {
	input := raw.Describe()
	if raw.Brand != "" {
		input = raw.Brand + " " + input
	}
	body, err := json.Marshal(extractionRequest{Model: n.cfg.Model, Prompt: extractionPrompt, Input: input})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.cfg.APIKey)

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("normalize: ai request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("normalize: ai returned status %d", resp.StatusCode)
	}

	var out NormalizedProduct
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("normalize: decode ai response: %w", err)
	}
	out.BaseName = collapse(out.BaseName)
	if out.BaseName == "" {
		return nil, nil
	}
	out.Brand = collapse(out.Brand)
	out.VariantName = collapse(out.VariantName)
	if out.VariantName == "" {
		out.VariantName = out.BaseName
	}
	if out.Category == "" {
		out.Category = TitleWords(CleanText(raw.Category))
	}
	if out.ImageURL == "" {
		out.ImageURL = strings.TrimSpace(raw.ImageURL)
	}
	out.Normalizer = n.Name()
	return &out, nil
}
