package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/crewplanner-backend/internal/slots"
	"github.com/angelmondragon/crewplanner-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/crewplanner-backend/pkg/errors"
)

const (
	defaultModel                = "gpt-4o-mini"
	defaultBaseURL              = "https://api.openai.com/v1"
	responseBodyReadLimit int64 = 1024
	responseDecodeLimit   int64 = 1 << 20
)

const systemPrompt = `You help a field-service dispatcher offer appointment dates.
You receive open crew-day slots as JSON. Pick up to the requested number of slots.
Prefer earlier dates, then more remaining capacity, and spread picks across different weekdays.
Only pick slots that appear in the list, using the exact date and crewName.
Reply with JSON only: {"recommendations":[{"date":"YYYY-MM-DD","crewName":"...","reason":"..."}],"analysis":"..."}`

// Client asks an OpenAI-compatible chat completions endpoint to narrate slot picks.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// New returns nil when no API key is configured, which leaves the oracle disabled.
func New(cfg config.OpenAIConfig, httpClient *http.Client) *Client {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	c := &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:     key,
		model:      strings.TrimSpace(cfg.Model),
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.model == "" {
		c.model = defaultModel
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type candidateView struct {
	Date      string `json:"date"`
	Weekday   string `json:"weekday"`
	CrewName  string `json:"crewName"`
	Remaining string `json:"remainingCapacity"`
	Ceiling   string `json:"dailyCapacity"`
}

// Advise implements slots.Oracle. Any transport, status or decoding problem is an error so the
// recommender falls back.
func (c *Client) Advise(ctx context.Context, req slots.OracleRequest) (*slots.OracleResponse, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "oracle client not configured")
	}
	prompt, err := userPrompt(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build oracle prompt")
	}

	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature:    0.2,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal oracle request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build oracle request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute oracle request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "oracle request failed")
	}

	var chat chatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, responseDecodeLimit)).Decode(&chat); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode oracle response")
	}
	if len(chat.Choices) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "oracle returned no choices")
	}

	content := stripFences(chat.Choices[0].Message.Content)
	var out slots.OracleResponse
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode oracle selection")
	}
	if len(out.Recommendations) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "oracle returned no recommendations")
	}
	return &out, nil
}

func userPrompt(req slots.OracleRequest) (string, error) {
	views := make([]candidateView, 0, len(req.Candidates))
	for _, c := range req.Candidates {
		views = append(views, candidateView{
			Date:      c.DateKey(),
			Weekday:   c.Date.Weekday().String(),
			CrewName:  c.CrewName,
			Remaining: c.Remaining.StringFixed(2),
			Ceiling:   c.Ceiling.StringFixed(2),
		})
	}
	body, err := json.Marshal(views)
	if err != nil {
		return "", err
	}
	services := "any"
	if len(req.ServiceNames) > 0 {
		services = strings.Join(req.ServiceNames, ", ")
	}
	return fmt.Sprintf("Area: %s\nRequired services: %s\nPick up to %d slots.\nCandidates:\n%s",
		req.AreaName, services, req.MaxPicks, body), nil
}

// stripFences removes a markdown code fence some models wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

var _ slots.Oracle = (*Client)(nil)
