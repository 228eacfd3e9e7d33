package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"codestream/internal/logging"
)

// OpenAIConfig configures an OpenAI-compatible chat completions endpoint.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	ReadSize   int
}

// DefaultOpenAIConfig returns sensible defaults.
func DefaultOpenAIConfig(apiKey string) OpenAIConfig {
	return OpenAIConfig{
		APIKey:     apiKey,
		BaseURL:    "https://api.openai.com/v1",
		Model:      "gpt-4o-mini",
		Timeout:    5 * time.Minute,
		MaxRetries: 3,
		ReadSize:   DefaultReadSize,
	}
}

// ChatMessage is one message of a chat completions request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream"`
}

// OpenAIClient opens streaming chat completions.
type OpenAIClient struct {
	config     OpenAIConfig
	httpClient *http.Client

	mu          sync.Mutex
	lastRequest time.Time

	// backoff returns the wait before retry attempt n (n >= 1).
	backoff func(attempt int) time.Duration
}

// NewOpenAIClient creates a client for config.
func NewOpenAIClient(config OpenAIConfig) *OpenAIClient {
	if config.ReadSize <= 0 {
		config.ReadSize = DefaultReadSize
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &OpenAIClient{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		backoff: func(attempt int) time.Duration {
			return time.Duration(1<<uint(attempt-1)) * time.Second
		},
	}
}

// Model returns the configured model.
func (c *OpenAIClient) Model() string {
	return c.config.Model
}

// Stream sends the prompt with stream set and returns the raw SSE body as a
// chunk source. Rate limits (429) and network failures before the stream
// starts are retried with exponential backoff; other non-200 responses fail
// immediately. The caller must Close the returned source.
func (c *OpenAIClient) Stream(ctx context.Context, systemPrompt, userPrompt string) (*ReaderSource, error) {
	if c.config.APIKey == "" {
		return nil, fmt.Errorf("API key not configured")
	}

	// Rate limiting
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < 100*time.Millisecond {
		time.Sleep(100*time.Millisecond - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	var messages []ChatMessage
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, ChatMessage{Role: "user", Content: userPrompt})

	jsonData, err := json.Marshal(chatRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Temperature: 0.1,
		Stream:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	startTime := time.Now()
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoff(attempt)
			logging.TransportDebug("openai: retry %d/%d in %v: %v", attempt, c.config.MaxRetries, wait, lastErr)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		attemptStart := time.Now()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
		req.Header.Set("Accept", "text/event-stream")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			logging.Audit().LLMCall("openai", c.config.Model, attempt+1, time.Since(attemptStart).Milliseconds(), lastErr)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("rate limit exceeded (429): %s", strings.TrimSpace(string(body)))
			logging.Audit().LLMCall("openai", c.config.Model, attempt+1, time.Since(attemptStart).Milliseconds(), lastErr)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			err := fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			logging.Audit().LLMCall("openai", c.config.Model, attempt+1, time.Since(attemptStart).Milliseconds(), err)
			logging.TransportError("openai: %v", err)
			return nil, err
		}

		logging.Audit().LLMCall("openai", c.config.Model, attempt+1, time.Since(attemptStart).Milliseconds(), nil)
		logging.Transport("openai: stream opened model=%s after %v (%d attempts)", c.config.Model, time.Since(startTime), attempt+1)
		return NewReaderSource(resp.Body, c.config.ReadSize), nil
	}

	logging.TransportError("openai: max retries exceeded after %v: %v", time.Since(startTime), lastErr)
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
