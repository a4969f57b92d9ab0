package launch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Refiner post-processes launch scripts with a text generation service.
type Refiner interface {
	Refine(ctx context.Context, repoURL, ref, script string) (string, error)
	Generate(ctx context.Context, repoURL, ref string) (string, error)
}

// ChatRefiner talks to an OpenAI-compatible chat completions endpoint.
type ChatRefiner struct {
	BaseURL string
	APIKey  string
	Model   string
	Client  *http.Client
}

// NewChatRefiner returns nil when baseURL is empty so callers can pass the
// result straight to NewPlanner.
func NewChatRefiner(baseURL, apiKey, model string) Refiner {
	if baseURL == "" {
		return nil
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &ChatRefiner{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Model:   model,
		Client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

const (
	refineSystemPrompt = "You are a senior DevOps engineer. Improve deployment launch scripts while keeping them " +
		"safe, idempotent, and production ready. Only output the script content."
	generateSystemPrompt = "You are a DevOps assistant creating initial deployment scripts. If repository internals " +
		"are unknown, produce a safe scaffold with placeholder comments."
)

func (r *ChatRefiner) Refine(ctx context.Context, repoURL, ref, script string) (string, error) {
	prompt := fmt.Sprintf("Repository: %s\nReference: %s\nCurrent script:\n```bash\n%s\n```\n"+
		"Provide an improved bash script. Do not add explanations outside of the code block.",
		repoURL, refOrMain(ref), strings.TrimSpace(script))
	return r.complete(ctx, refineSystemPrompt, prompt, 600)
}

func (r *ChatRefiner) Generate(ctx context.Context, repoURL, ref string) (string, error) {
	prompt := fmt.Sprintf("Repository: %s\nReference: %s\n"+
		"Provide a bash script that clones the repository, checks out the ref, and leaves placeholder comments "+
		"for dependency installation and app startup.", repoURL, refOrMain(ref))
	return r.complete(ctx, generateSystemPrompt, prompt, 500)
}

func (r *ChatRefiner) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: r.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.APIKey)
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat completion returned status %d", resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode chat completion: %w", err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("chat completion returned no content")
	}
	return extractCodeBlock(out.Choices[0].Message.Content), nil
}

// extractCodeBlock returns the first fenced block in text, without its
// language tag, or the trimmed text when there is none.
func extractCodeBlock(text string) string {
	segments := strings.Split(text, "```")
	if len(segments) < 3 {
		return strings.TrimSpace(text)
	}
	block := segments[1]
	if i := strings.Index(block, "\n"); i >= 0 && !strings.ContainsAny(strings.TrimSpace(block[:i]), " \t") {
		block = block[i+1:]
	}
	return strings.TrimSpace(block) + "\n"
}

func refOrMain(ref string) string {
	if ref == "" {
		return "main"
	}
	return ref
}
