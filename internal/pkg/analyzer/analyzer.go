package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/LinHaoYu/ContractLens/internal/pkg/entitlement"
	"github.com/LinHaoYu/ContractLens/internal/pkg/env"
)

const defaultAPIBaseURL = "https://api.openai.com/v1"

const systemPrompt = "You are a professional contract risk analyst. Analyze the contract text the " +
	"user provides, identify potential legal risks and problems, and give concrete " +
	"suggestions and improvements. Answer in clear, well-structured prose."

// Client calls the external chat-completion backend that performs the actual
// contract analysis. The backend is an opaque collaborator: this service only
// cares about the result text and the token cost metric.
type Client struct {
	APIKey     string
	APIBaseURL string

	FreeModel    string
	PremiumModel string

	MaxTokens   int
	Temperature float64

	HTTPClient *http.Client
}

// Analysis is the outcome of one backend call.
type Analysis struct {
	Result     string
	ModelUsed  string
	TokensUsed int
}

func NewClientFromEnv() *Client {
	return &Client{
		APIKey:       strings.TrimSpace(env.GetEnv("OPENAI_API_KEY", "")),
		APIBaseURL:   strings.TrimRight(env.GetEnv("OPENAI_API_BASE_URL", defaultAPIBaseURL), "/"),
		FreeModel:    env.GetEnv("ANALYZER_FREE_MODEL", "gpt-3.5-turbo"),
		PremiumModel: env.GetEnv("ANALYZER_PREMIUM_MODEL", "gpt-4o"),
		MaxTokens:    2000,
		Temperature:  0.3,
		HTTPClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// ModelForTier maps the debited entitlement tier to the backend model. Paid
// tiers get the premium model; the free tier gets the base one.
func (c *Client) ModelForTier(tier entitlement.Tier) string {
	switch tier {
	case entitlement.TierSingle, entitlement.TierSubscription:
		return c.PremiumModel
	default:
		return c.FreeModel
	}
}

// Analyze runs one chat completion with the given model over the contract
// text and returns the result plus total tokens consumed.
func (c *Client) Analyze(ctx context.Context, model, contractText string) (*Analysis, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, errors.New("OPENAI_API_KEY is not configured")
	}
	if strings.TrimSpace(contractText) == "" {
		return nil, errors.New("contract text is required")
	}

	payload := map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": "Analyze the risks in the following contract text:\n\n" + contractText},
		},
		"max_tokens":  c.MaxTokens,
		"temperature": c.Temperature,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBaseURL+"/chat/completions", bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("analysis backend request failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, errors.New("analysis backend returned no choices")
	}

	return &Analysis{
		Result:     out.Choices[0].Message.Content,
		ModelUsed:  model,
		TokensUsed: out.Usage.TotalTokens,
	}, nil
}
