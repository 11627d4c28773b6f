package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
)

// TextFilter is the external profanity-filter collaborator. It is always
// fail-open: callers fall back to the original text on any error, and a
// filter outage never blocks a submission.
type TextFilter interface {
	CheckText(ctx context.Context, text string) (isClean bool, filtered string, err error)
}

// noopFilter passes everything through. Used when no --filter-url is set.
type noopFilter struct{}

func (noopFilter) CheckText(_ context.Context, text string) (bool, string, error) {
	return true, text, nil
}

type httpTextFilter struct {
	url    string
	client *http.Client
}

func newTextFilter(cfg *Config) TextFilter {
	if cfg.filterURL == "" {
		return noopFilter{}
	}
	return &httpTextFilter{
		url:    cfg.filterURL,
		client: &http.Client{Timeout: cfg.filterTimeout},
	}
}

type filterRequest struct {
	Text string `json:"text"`
}

type filterResponse struct {
	IsClean      bool   `json:"isClean"`
	FilteredText string `json:"filteredText"`
}

func (f *httpTextFilter) CheckText(ctx context.Context, text string) (bool, string, error) {
	body, err := json.Marshal(filterRequest{Text: text})
	if err != nil {
		return true, text, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return true, text, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return true, text, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return true, text, nil
	}

	var parsed filterResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return true, text, err
	}

	return parsed.IsClean, parsed.FilteredText, nil
}

// filterText runs one field through the collaborator, returning the filtered
// replacement or, on failure or a clean verdict, the original text.
func filterText(ctx context.Context, f TextFilter, text string) string {
	if text == "" {
		return ""
	}

	isClean, filtered, err := f.CheckText(ctx, text)
	if err != nil || isClean || filtered == "" {
		return text
	}
	return filtered
}
