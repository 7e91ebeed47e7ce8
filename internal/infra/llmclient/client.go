// Package llmclient talks to the colocated Ollama-compatible inference
// sidecar over HTTP: streaming chat completions and single-shot title
// generation. It never spawns or manages the sidecar process itself — that
// binary's lifecycle is out of scope here, it is assumed already running.
package llmclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/archestra-ai/gateway/internal/domain"
)

// titleModel is the small, fast model used purely for summarizing a short
// chat history into a title; it is never used for the user-facing reply.
const titleModel = "qwen3:1.7b"

// Client implements domain.LLMClient against an Ollama-compatible HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client pointed at host, defaulting to OLLAMA_HOST or
// http://127.0.0.1:11434 when host is empty.
func New(host string) *Client {
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	if host == "" {
		host = "http://127.0.0.1:11434"
	}
	return &Client{
		baseURL: strings.TrimRight(host, "/"),
		http:    &http.Client{Timeout: 0}, // streaming: no overall deadline, ctx governs cancellation
	}
}

type chatRequestWire struct {
	Model    string                `json:"model"`
	Messages []chatMessageWire     `json:"messages"`
	Stream   bool                  `json:"stream"`
	Tools    []domain.MCPTool      `json:"tools,omitempty"`
	Think    bool                  `json:"think,omitempty"`
	Options  *domain.GenerateOptions `json:"options,omitempty"`
}

type chatMessageWire struct {
	Role      domain.ChatRole  `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []domain.ToolCall `json:"tool_calls,omitempty"`
}

type chatChunkWire struct {
	Message struct {
		Content   string            `json:"content"`
		ToolCalls []domain.ToolCall `json:"tool_calls,omitempty"`
	} `json:"message"`
	Done bool `json:"done"`
}

// ChatStream opens a streaming chat completion and returns a channel of
// deltas, closed when the sidecar reports done or the context is cancelled.
func (c *Client) ChatStream(ctx context.Context, req domain.ChatStreamRequest) (<-chan domain.ChatDelta, error) {
	messages := make([]chatMessageWire, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = chatMessageWire{Role: m.Role, Content: m.Content, ToolCalls: m.ToolCalls}
	}

	wire := chatRequestWire{
		Model:    req.Model,
		Messages: messages,
		Stream:   true,
		Tools:    req.Tools,
		Think:    req.Think,
		Options:  req.Options,
	}
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm sidecar request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("llm sidecar returned status %d", resp.StatusCode)
	}

	out := make(chan domain.ChatDelta, 64)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			var chunk chatChunkWire
			if err := json.Unmarshal([]byte(line), &chunk); err != nil {
				continue
			}

			delta := domain.ChatDelta{
				Content:   chunk.Message.Content,
				ToolCalls: chunk.Message.ToolCalls,
				Done:      chunk.Done,
			}
			select {
			case <-ctx.Done():
				return
			case out <- delta:
			}
			if chunk.Done {
				return
			}
		}
	}()

	return out, nil
}

// GenerateTitle asks the fixed small model for a short title summarizing
// contextText, non-streaming. It returns an empty string rather than an
// error when the sidecar is unreachable, since title generation is a
// best-effort enhancement and must never fail a chat turn.
func (c *Client) GenerateTitle(ctx context.Context, model string, contextText string) (string, error) {
	useModel := titleModel
	if model != "" {
		useModel = model
	}

	wire := chatRequestWire{
		Model: useModel,
		Messages: []chatMessageWire{
			{Role: domain.RoleSystem, Content: "Summarize the following conversation in 4 words or fewer, no punctuation."},
			{Role: domain.RoleUser, Content: contextText},
		},
		Stream: false,
	}
	body, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("marshal title request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", nil
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil
	}

	var chunk chatChunkWire
	if err := json.NewDecoder(resp.Body).Decode(&chunk); err != nil {
		return "", nil
	}
	return strings.TrimSpace(chunk.Message.Content), nil
}
