// Package classify turns inbound email content into a structured routing
// decision through a single chat-completion call, with one bounded JSON
// repair attempt.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/deskgo-io/deskgo/internal/models"
)

const (
	defaultTimeout     = 60 * time.Second
	defaultTemperature = float32(0.2)
	maxBodyChars       = 4000
)

var (
	// ErrMissingAPIKey is a configuration error; no call is attempted.
	ErrMissingAPIKey = errors.New("classifier API key not configured")
	// ErrDecisionUnparsable is returned after the repair attempt also fails.
	ErrDecisionUnparsable = errors.New("classifier returned unparsable decision")
)

// Decision is the structured routing outcome for one message.
type Decision struct {
	AreaID        int    `json:"area_id"`
	CategoryID    int    `json:"category_id"`
	SubcategoryID int    `json:"subcategory_id"`
	Impact        string `json:"impact"`
	Summary       string `json:"summary"`
	Description   string `json:"description"`
}

// Defaults carries the deterministic routing used when the model fails or
// returns out-of-menu values.
type Defaults struct {
	AreaID        int
	CategoryID    int
	SubcategoryID int
	Impact        string
}

// Input is one classification request.
type Input struct {
	Subject  string
	From     string
	Body     string
	Menu     models.Menu
	Defaults Defaults
}

// Config holds the completion endpoint settings.
type Config struct {
	APIURL      string
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// Classifier calls an OpenAI-compatible chat-completions endpoint.
type Classifier struct {
	client      *http.Client
	apiURL      string
	apiKey      string
	model       string
	temperature float32
	logger      *log.Logger
}

// Option customizes a Classifier.
type Option func(*Classifier)

// WithLogger overrides the logger used for diagnostics.
func WithLogger(logger *log.Logger) Option {
	return func(c *Classifier) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient overrides the HTTP client, primarily for tests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Classifier) {
		if client != nil {
			c.client = client
		}
	}
}

// New builds a classifier from config.
func New(cfg Config, opts ...Option) *Classifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = defaultTemperature
	}
	c := &Classifier{
		client:      &http.Client{Timeout: timeout},
		apiURL:      cfg.APIURL,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: temperature,
		logger:      log.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Classify produces a routing decision for one email. The response content is
// free text; a JSON object is extracted from it before parsing. On parse
// failure exactly one repair call is issued, then the error propagates.
func (c *Classifier) Classify(ctx context.Context, in Input) (*Decision, error) {
	if c == nil || c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	content, err := c.complete(ctx, []chatMessage{
		{Role: "system", Content: c.systemPrompt(in)},
		{Role: "user", Content: c.userPrompt(in)},
	})
	if err != nil {
		return nil, err
	}

	decision, parseErr := parseDecision(content)
	if parseErr != nil {
		c.logf("classify: first parse failed, issuing repair call: %v", parseErr)
		repaired, repairErr := c.complete(ctx, []chatMessage{
			{Role: "system", Content: repairPrompt},
			{Role: "user", Content: content},
		})
		if repairErr != nil {
			return nil, repairErr
		}
		decision, parseErr = parseDecision(repaired)
		if parseErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecisionUnparsable, parseErr)
		}
	}

	decision.Impact = normalizeImpact(decision.Impact, in.Defaults.Impact)
	return decision, nil
}

func (c *Classifier) complete(ctx context.Context, messages []chatMessage) (string, error) {
	payload, err := json.Marshal(chatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("encode completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call completion endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read completion response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("completion endpoint error %d: %s", resp.StatusCode, string(body))
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", errors.New("completion endpoint returned empty response")
	}
	return parsed.Choices[0].Message.Content, nil
}

const repairPrompt = `Your previous output was not valid JSON. Return the same decision as a single valid JSON object with the keys area_id, category_id, subcategory_id, impact, summary, description and nothing else.`

func (c *Classifier) systemPrompt(in Input) string {
	var b strings.Builder
	b.WriteString("You are a helpdesk triage assistant. Classify the email into the routing menus below and respond with STRICT JSON only: ")
	b.WriteString(`{"area_id": int, "category_id": int, "subcategory_id": int, "impact": "baixo"|"medio"|"alto", "summary": string, "description": string}`)
	b.WriteString("\nEvery id must come from the menus. impact must be baixo, medio or alto.\n")

	b.WriteString("\nAreas:\n")
	for _, a := range in.Menu.Areas {
		fmt.Fprintf(&b, "- %d: %s\n", a.ID, a.Name)
	}
	b.WriteString("\nCategories and subcategories:\n")
	for _, cat := range in.Menu.Categories {
		fmt.Fprintf(&b, "- %d: %s\n", cat.ID, cat.Name)
		for _, sub := range cat.Subcategories {
			fmt.Fprintf(&b, "  - %d: %s\n", sub.ID, sub.Name)
		}
	}
	if len(in.Menu.Products) > 0 {
		b.WriteString("\nProducts (context only):\n")
		for _, p := range in.Menu.Products {
			fmt.Fprintf(&b, "- %d: %s\n", p.ID, p.Name)
		}
	}
	return b.String()
}

func (c *Classifier) userPrompt(in Input) string {
	body := in.Body
	if len(body) > maxBodyChars {
		body = body[:maxBodyChars] + "... [truncated]"
	}
	return fmt.Sprintf("From: %s\nSubject: %s\n\n%s", in.From, in.Subject, body)
}

func parseDecision(content string) (*Decision, error) {
	raw, err := extractJSONObject(content)
	if err != nil {
		return nil, err
	}
	var decision Decision
	if err := json.Unmarshal([]byte(raw), &decision); err != nil {
		return nil, fmt.Errorf("decode decision: %w", err)
	}
	return &decision, nil
}

// extractJSONObject pulls the first balanced JSON object out of free text,
// tolerating markdown fences and surrounding prose.
func extractJSONObject(content string) (string, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	}

	start := strings.IndexByte(content, '{')
	if start < 0 {
		return "", errors.New("no JSON object in response")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		ch := content[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return content[start : i+1], nil
			}
		}
	}
	return "", errors.New("unbalanced JSON object in response")
}

func normalizeImpact(impact, fallback string) string {
	switch strings.ToLower(strings.TrimSpace(impact)) {
	case models.ImpactBaixo:
		return models.ImpactBaixo
	case models.ImpactMedio:
		return models.ImpactMedio
	case models.ImpactAlto:
		return models.ImpactAlto
	}
	if fallback != "" {
		return normalizeImpact(fallback, models.ImpactMedio)
	}
	return models.ImpactMedio
}

func (c *Classifier) logf(format string, args ...any) {
	if c == nil || c.logger == nil {
		return
	}
	c.logger.Printf(format, args...)
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}
