// Package understanding is the client for the long-document understanding
// service: file upload for extraction plus a batched chat-completion style
// summarization call (OpenAI-compatible API surface).
package understanding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const filePurpose = "file-extract"

// Client talks to an OpenAI-compatible endpoint that supports file upload
// and fileid:// references in chat messages (qwen-long convention).
type Client struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// NewClient creates an understanding-service client.
func NewClient(log *slog.Logger, baseURL, apiKey, model string, timeout time.Duration) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("understanding base_url is required")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("understanding api_key is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("understanding model is required")
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		logger:     log.With(slog.String("adapter", "understanding")),
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(apiKey),
		model:      strings.TrimSpace(model),
	}, nil
}

type uploadResponse struct {
	ID string `json:"id"`
}

// UploadFile uploads raw document bytes for extraction and returns the
// opaque remote file identifier.
func (c *Client) UploadFile(ctx context.Context, name string, data []byte) (string, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if err := form.WriteField("purpose", filePurpose); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files", &body)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", form.FormDataContentType())

	raw, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	var parsed uploadResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("upload %s: parse response: %w", name, err)
	}
	fileID := strings.TrimSpace(parsed.ID)
	if fileID == "" {
		return "", fmt.Errorf("upload %s: empty file id", name)
	}
	return fileID, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Summarize issues one batched summarization request referencing every
// uploaded file in order. A response without generated text is not an
// error; the caller substitutes its placeholder.
func (c *Client) Summarize(ctx context.Context, fileIDs []string, multi bool) (string, error) {
	if len(fileIDs) == 0 {
		return "", fmt.Errorf("at least one file id is required")
	}
	messages := make([]chatMessage, 0, len(fileIDs)+2)
	messages = append(messages, chatMessage{Role: "system", Content: systemRolePrompt})
	for _, id := range fileIDs {
		messages = append(messages, chatMessage{Role: "system", Content: "fileid://" + id})
	}
	prompt := userPromptSingle
	if multi {
		prompt = userPromptMulti
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	payload, err := json.Marshal(chatRequest{Model: c.model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("marshal summarize request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build summarize request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	raw, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("summarize: parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		c.logger.Warn("summarize response has no choices")
		return "", nil
	}
	return parsed.Choices[0].Message.Content, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, summarizeBody(raw))
	}
	return raw, nil
}

func summarizeBody(raw []byte) string {
	text := strings.TrimSpace(string(raw))
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	return text
}
