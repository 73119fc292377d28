package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const maxResponseBytes = 8 << 20

// StaticProvider serves options configured in service TOML.
type StaticProvider struct {
	Options []Option
}

// Fetch returns configured options copy.
// Params: context (unused).
// Returns: options.
func (p StaticProvider) Fetch(context.Context) ([]Option, error) {
	return append([]Option(nil), p.Options...), nil
}

// HTTPProvider loads options from host REST API.
// Params: endpoint URL, gjson paths and optional request headers.
// Returns: provider extracting one option per array item.
type HTTPProvider struct {
	URL       string
	ItemsPath string
	LabelPath string
	ValuePath string
	TypePath  string
	Headers   map[string]string
	Client    *http.Client
}

// Fetch performs GET and extracts options with gjson paths.
// Params: context bounding the request.
// Returns: options or transport/status/shape error.
func (p HTTPProvider) Fetch(ctx context.Context) ([]Option, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	for key, value := range p.Headers {
		request.Header.Set(key, value)
	}
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	response, err := client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", p.URL, err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s: unexpected status %d", p.URL, response.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p.URL, err)
	}
	return p.Extract(body)
}

// Extract converts host JSON payload into options.
// Params: raw JSON body.
// Returns: options; items without value are skipped.
func (p HTTPProvider) Extract(body []byte) ([]Option, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("catalog response is not valid JSON")
	}
	root := gjson.ParseBytes(body)
	items := root
	if p.ItemsPath != "" {
		items = root.Get(p.ItemsPath)
	}
	if !items.IsArray() {
		return nil, fmt.Errorf("catalog items path %q is not an array", p.ItemsPath)
	}
	valuePath := p.ValuePath
	if valuePath == "" {
		valuePath = "id"
	}
	labelPath := p.LabelPath
	if labelPath == "" {
		labelPath = valuePath
	}

	out := make([]Option, 0, len(items.Array()))
	items.ForEach(func(_, item gjson.Result) bool {
		value := strings.TrimSpace(item.Get(valuePath).String())
		if value == "" {
			return true
		}
		label := strings.TrimSpace(item.Get(labelPath).String())
		if label == "" {
			label = value
		}
		if p.TypePath != "" {
			if kind := strings.TrimSpace(item.Get(p.TypePath).String()); kind != "" {
				label = label + " – " + kind
			}
		}
		out = append(out, Option{Label: label, Value: value})
		return true
	})
	return out, nil
}
