package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const anthropicVersion = "2023-06-01"

type anthropicJudge struct {
	cfg    Config
	client *http.Client
	url    string
}

func newAnthropic(cfg Config, client *http.Client) *anthropicJudge {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.anthropic.com"
	}
	return &anthropicJudge{cfg: cfg, client: client, url: strings.TrimRight(base, "/") + "/v1/messages"}
}

func (j *anthropicJudge) Classify(ctx context.Context, req *Request) (*Verdict, error) {
	body, _ := json.Marshal(map[string]any{
		"model":       j.cfg.Model,
		"max_tokens":  j.cfg.MaxTokens,
		"temperature": 0,
		"system":      systemPrompt,
		"messages": []map[string]string{
			{"role": "user", "content": req.Prompt()},
		},
	})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, j.url, bytes.NewReader(body))
	if err != nil {
		return nil, &FatalError{Provider: ProviderAnthropic, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", j.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := j.client.Do(httpReq)
	if err != nil {
		return nil, transportError(ctx, ProviderAnthropic, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, statusError(ProviderAnthropic, resp.StatusCode, string(msg))
	}

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &TransientError{Provider: ProviderAnthropic, Err: fmt.Errorf("decoding response: %w", err)}
	}
	var text strings.Builder
	for _, c := range result.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}
	v, err := ParseVerdict(ProviderAnthropic, text.String())
	if err != nil {
		return nil, err
	}
	v.Usage = Usage{InputTokens: result.Usage.InputTokens, OutputTokens: result.Usage.OutputTokens}
	return v, nil
}

// transportError classifies a failed round trip. Cancellation is returned
// as-is so callers stop instead of retrying.
func transportError(ctx context.Context, provider string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &TransientError{Provider: provider, Err: err}
}
