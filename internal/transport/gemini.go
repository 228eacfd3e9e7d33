package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"

	"codestream/internal/logging"

	"google.golang.org/genai"
)

// GeminiConfig configures a Gemini streaming call.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// GeminiSource streams a Gemini response. Each text part is re-framed as a
// `data: {"content": ...}` line and the stream ends with `data: [DONE]`, so the
// decoder sees the same wire format as an OpenAI-compatible endpoint.
type GeminiSource struct {
	next func() (string, error, bool)
	stop func()

	parts int
	done  bool
}

// NewGeminiSource starts a streaming generation. The stream runs under ctx;
// the caller must Close the source.
func NewGeminiSource(ctx context.Context, config GeminiConfig, systemPrompt, userPrompt string) (*GeminiSource, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key not configured")
	}
	if config.Model == "" {
		config.Model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	var genConfig *genai.GenerateContentConfig
	if systemPrompt != "" {
		genConfig = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		}
	}

	responses := client.Models.GenerateContentStream(ctx, config.Model, genai.Text(userPrompt), genConfig)
	logging.Transport("gemini: stream opened model=%s", config.Model)

	return newGeminiSource(func(yield func(string, error) bool) {
		for resp, err := range responses {
			if err != nil {
				yield("", err)
				return
			}
			if !yield(resp.Text(), nil) {
				return
			}
		}
	}), nil
}

func newGeminiSource(texts iter.Seq2[string, error]) *GeminiSource {
	next, stop := iter.Pull2(texts)
	return &GeminiSource{next: next, stop: stop}
}

// Next returns one frame per response part.
func (s *GeminiSource) Next(ctx context.Context) ([]byte, error) {
	if s.done {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		s.Close()
		return nil, err
	}

	for {
		text, err, ok := s.next()
		switch {
		case !ok:
			s.Close()
			logging.TransportDebug("gemini: stream complete after %d parts", s.parts)
			return []byte("data: [DONE]\n\n"), io.EOF
		case err != nil:
			s.Close()
			logging.TransportWarn("gemini: stream error after %d parts: %v", s.parts, err)
			return nil, fmt.Errorf("gemini stream: %w", err)
		case text == "":
			continue
		}

		s.parts++
		payload, err := json.Marshal(map[string]string{"content": text})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal frame: %w", err)
		}
		return append(append([]byte("data: "), payload...), '\n', '\n'), nil
	}
}

// Parts returns how many non-empty parts have been framed.
func (s *GeminiSource) Parts() int {
	return s.parts
}

// Close stops the underlying stream. It is safe to call more than once.
func (s *GeminiSource) Close() error {
	s.done = true
	s.stop()
	return nil
}
