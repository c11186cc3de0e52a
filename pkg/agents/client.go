package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Client is an HTTP client for an agents-service REST API (assistants-style:
// agents, threads, messages, streamed runs, files, vector stores).
type Client struct {
	config     *Config
	httpClient *http.Client
	// streamClient carries no overall timeout: a streamed run stays open
	// for the full duration of a turn.
	streamClient *http.Client
}

// Config holds connection settings for the agents service.
type Config struct {
	Endpoint string
	APIKey   string
}

// New creates a client for the given service endpoint.
func New(config *Config) *Client {
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		streamClient: &http.Client{},
	}
}

// do issues a JSON request and decodes the response into out (may be nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.Endpoint+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
	}
	return nil
}

func (c *Client) setAuth(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("X-Request-Id", uuid.New().String())
}

// CreateAgentRequest is the payload for CreateAgent.
type CreateAgentRequest struct {
	Model        string           `json:"model"`
	Name         string           `json:"name"`
	Instructions string           `json:"instructions"`
	Tools        []ToolDescriptor `json:"tools"`
	Temperature  float32          `json:"temperature"`
}

// CreateAgent provisions a remote agent.
func (c *Client) CreateAgent(ctx context.Context, req CreateAgentRequest) (*Agent, error) {
	var agent Agent
	if err := c.do(ctx, http.MethodPost, "/agents", req, &agent); err != nil {
		return nil, fmt.Errorf("create agent: %w", err)
	}
	return &agent, nil
}

// CreateThread provisions a conversation thread.
func (c *Client) CreateThread(ctx context.Context) (*Thread, error) {
	var thread Thread
	if err := c.do(ctx, http.MethodPost, "/threads", struct{}{}, &thread); err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}
	return &thread, nil
}

// CreateMessage appends a message to a thread.
func (c *Client) CreateMessage(ctx context.Context, threadID, role, content string) (*Message, error) {
	body := map[string]string{"role": role, "content": content}
	var msg Message
	if err := c.do(ctx, http.MethodPost, "/threads/"+threadID+"/messages", body, &msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	return &msg, nil
}

// ListFiles returns every file currently held by the service.
func (c *Client) ListFiles(ctx context.Context) ([]FileRef, error) {
	var out struct {
		Data []FileRef `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/files", nil, &out); err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return out.Data, nil
}

// DeleteFile removes an uploaded file.
func (c *Client) DeleteFile(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/files/"+id, nil, nil); err != nil {
		return fmt.Errorf("delete file %s: %w", id, err)
	}
	return nil
}

// DeleteThread removes a thread and its messages.
func (c *Client) DeleteThread(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/threads/"+id, nil, nil); err != nil {
		return fmt.Errorf("delete thread %s: %w", id, err)
	}
	return nil
}

// DeleteAgent removes an agent.
func (c *Client) DeleteAgent(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/agents/"+id, nil, nil); err != nil {
		return fmt.Errorf("delete agent %s: %w", id, err)
	}
	return nil
}

// UploadFile uploads a local file for the given purpose ("assistants" for
// corpus and asset files) and returns its service reference.
func (c *Client) UploadFile(ctx context.Context, path, purpose string) (*FileRef, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("copy file contents: %w", err)
	}
	if err := mw.WriteField("purpose", purpose); err != nil {
		return nil, fmt.Errorf("write purpose field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint+"/files", &buf)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var ref FileRef
	if err := json.Unmarshal(respBody, &ref); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return &ref, nil
}

// CreateVectorStore indexes the given uploaded files into a named vector store.
func (c *Client) CreateVectorStore(ctx context.Context, name string, fileIDs []string) (*VectorStore, error) {
	body := map[string]any{"name": name, "file_ids": fileIDs}
	var vs VectorStore
	if err := c.do(ctx, http.MethodPost, "/vector_stores", body, &vs); err != nil {
		return nil, fmt.Errorf("create vector store: %w", err)
	}
	return &vs, nil
}

// CreateRunStream opens a streamed run for one turn against a thread and
// agent. The caller owns the returned stream and must consume it to a
// terminal event or close it.
func (c *Client) CreateRunStream(ctx context.Context, threadID, agentID string, opts RunOptions) (EventStream, error) {
	body := map[string]any{
		"agent_id":              agentID,
		"stream":                true,
		"max_completion_tokens": opts.MaxCompletionTokens,
		"max_prompt_tokens":     opts.MaxPromptTokens,
		"temperature":           opts.Temperature,
		"top_p":                 opts.TopP,
	}
	return c.openStream(ctx, "/threads/"+threadID+"/runs", body)
}

// SubmitToolOutputsStream feeds tool results back into a suspended run and
// resumes streaming the remainder of the turn.
func (c *Client) SubmitToolOutputsStream(ctx context.Context, threadID, runID string, outputs []ToolOutput) (EventStream, error) {
	body := map[string]any{
		"tool_outputs": outputs,
		"stream":       true,
	}
	return c.openStream(ctx, "/threads/"+threadID+"/runs/"+runID+"/submit_tool_outputs", body)
}

func (c *Client) openStream(ctx context.Context, path string, body any) (EventStream, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	c.setAuth(req)

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return newStream(resp.Body), nil
}
