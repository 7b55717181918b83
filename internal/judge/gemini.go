package judge

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

type geminiJudge struct {
	cfg    Config
	client *genai.Client
}

func newGemini(ctx context.Context, cfg Config, httpClient *http.Client) (*geminiJudge, error) {
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &geminiJudge{cfg: cfg, client: client}, nil
}

func (j *geminiJudge) Classify(ctx context.Context, req *Request) (*Verdict, error) {
	resp, err := j.client.Models.GenerateContent(ctx, j.cfg.Model, genai.Text(req.Prompt()), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr[float32](0),
		MaxOutputTokens:   int32(j.cfg.MaxTokens),
	})
	if err != nil {
		return nil, geminiError(ctx, err)
	}

	v, err := ParseVerdict(ProviderGemini, resp.Text())
	if err != nil {
		return nil, err
	}
	if u := resp.UsageMetadata; u != nil {
		v.Usage = Usage{InputTokens: int(u.PromptTokenCount), OutputTokens: int(u.CandidatesTokenCount)}
	}
	return v, nil
}

func geminiError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return statusError(ProviderGemini, apiErr.Code, apiErr.Message)
	}
	return &TransientError{Provider: ProviderGemini, Err: err}
}
