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

// chatCompletionsJudge speaks the OpenAI chat completions protocol, either
// to OpenAI itself or to an OpenAI-compatible gateway.
type chatCompletionsJudge struct {
	cfg      Config
	client   *http.Client
	url      string
	provider string
	jsonMode bool
}

func newChatCompletions(cfg Config, client *http.Client, direct bool) *chatCompletionsJudge {
	base := cfg.BaseURL
	provider := ProviderGateway
	if direct {
		provider = ProviderOpenAI
		if base == "" {
			base = "https://api.openai.com"
		}
	}
	return &chatCompletionsJudge{
		cfg:      cfg,
		client:   client,
		url:      strings.TrimRight(base, "/") + "/v1/chat/completions",
		provider: provider,
		jsonMode: direct,
	}
}

func (j *chatCompletionsJudge) Classify(ctx context.Context, req *Request) (*Verdict, error) {
	reqBody := map[string]any{
		"model":       j.cfg.Model,
		"max_tokens":  j.cfg.MaxTokens,
		"temperature": 0,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": req.Prompt()},
		},
	}
	if j.jsonMode {
		reqBody["response_format"] = map[string]string{"type": "json_object"}
	}
	body, _ := json.Marshal(reqBody)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, j.url, bytes.NewReader(body))
	if err != nil {
		return nil, &FatalError{Provider: j.provider, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if j.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+j.cfg.APIKey)
	}

	resp, err := j.client.Do(httpReq)
	if err != nil {
		return nil, transportError(ctx, j.provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, statusError(j.provider, resp.StatusCode, string(msg))
	}

	var chatResult struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&chatResult); err != nil {
		return nil, &TransientError{Provider: j.provider, Err: fmt.Errorf("decoding response: %w", err)}
	}
	if len(chatResult.Choices) == 0 {
		return nil, &TransientError{Provider: j.provider, Err: fmt.Errorf("no choices in response")}
	}

	v, err := ParseVerdict(j.provider, chatResult.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	v.Usage = Usage{InputTokens: chatResult.Usage.PromptTokens, OutputTokens: chatResult.Usage.CompletionTokens}
	return v, nil
}
