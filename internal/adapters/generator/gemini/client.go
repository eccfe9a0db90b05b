package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/brelli/genrepl/internal/domain"
	"github.com/brelli/genrepl/internal/ports"
)

const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Client talks to the generateContent endpoint. It implements both the text
// generation and the decision classification collaborator ports against the
// same API surface.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

var _ ports.TextGenerator = (*Client)(nil)
var _ ports.DecisionClassifier = (*Client)(nil)

func NewClient(baseURL, apiKey, model string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: httpClient,
	}
}

type generateRequest struct {
	SystemInstruction *content         `json:"system_instruction,omitempty"`
	Contents          []content        `json:"contents"`
	Tools             []toolsPayload   `json:"tools,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text         string        `json:"text,omitempty"`
	FunctionCall *functionCall `json:"functionCall,omitempty"`
}

type functionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type toolsPayload struct {
	FunctionDeclarations []functionDeclaration `json:"function_declarations"`
}

type functionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type generationConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	ResponseMimeType string   `json:"response_mime_type,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (c *Client) Generate(ctx context.Context, turns []domain.Turn, tools []ports.ToolSchema) (ports.GenerateReply, error) {
	req := generateRequest{}

	for _, turn := range turns {
		switch turn.Role {
		case domain.RoleSystem:
			// The API takes the system prompt out of band.
			if req.SystemInstruction == nil {
				req.SystemInstruction = &content{Parts: []part{{Text: turn.Content}}}
			}
		case domain.RoleAssistant:
			req.Contents = append(req.Contents, content{Role: "model", Parts: []part{{Text: turn.Content}}})
		default:
			req.Contents = append(req.Contents, content{Role: "user", Parts: []part{{Text: turn.Content}}})
		}
	}

	if len(tools) > 0 {
		payload := toolsPayload{}
		for _, schema := range tools {
			payload.FunctionDeclarations = append(payload.FunctionDeclarations, declarationForSchema(schema))
		}
		req.Tools = []toolsPayload{payload}
	}

	resp, err := c.post(ctx, req)
	if err != nil {
		return ports.GenerateReply{}, err
	}

	reply := ports.GenerateReply{Tokens: resp.UsageMetadata.TotalTokenCount}
	if len(resp.Candidates) == 0 {
		return ports.GenerateReply{}, fmt.Errorf("empty response from model %s", c.model)
	}

	for _, p := range resp.Candidates[0].Content.Parts {
		if p.Text != "" {
			reply.Text += p.Text
		}
		if p.FunctionCall != nil {
			args := map[string]string{}
			for key, value := range p.FunctionCall.Args {
				args[key] = fmt.Sprint(value)
			}
			reply.ToolCalls = append(reply.ToolCalls, ports.ToolCall{
				Name: domain.ToolName(p.FunctionCall.Name),
				Args: args,
			})
		}
	}

	return reply, nil
}

func (c *Client) post(ctx context.Context, payload generateRequest) (generateResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return generateResponse{}, fmt.Errorf("encode generate request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return generateResponse{}, fmt.Errorf("build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return generateResponse{}, fmt.Errorf("call model %s: %w", c.model, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return generateResponse{}, fmt.Errorf("read generate response: %w", err)
	}

	var resp generateResponse
	if err := json.Unmarshal(data, &resp); err != nil && httpResp.StatusCode == http.StatusOK {
		return generateResponse{}, fmt.Errorf("decode generate response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		message := httpResp.Status
		if resp.Error != nil {
			message = resp.Error.Message
		}
		if httpResp.StatusCode == http.StatusTooManyRequests || (resp.Error != nil && resp.Error.Status == "RESOURCE_EXHAUSTED") {
			return generateResponse{}, fmt.Errorf("model %s: %s: %w", c.model, message, domain.ErrQuotaExceeded)
		}
		return generateResponse{}, fmt.Errorf("model %s: %s", c.model, message)
	}

	return resp, nil
}

func declarationForSchema(schema ports.ToolSchema) functionDeclaration {
	properties := map[string]any{}
	required := []string{}
	for name, description := range schema.Parameters {
		properties[name] = map[string]any{"type": "string", "description": description}
	}
	switch schema.Name {
	case domain.ToolReadFile:
		required = append(required, "file_path")
	case domain.ToolWriteFile:
		required = append(required, "file_path", "content")
	case domain.ToolSearchCode:
		required = append(required, "pattern")
	}

	decl := functionDeclaration{
		Name:        string(schema.Name),
		Description: schema.Description,
	}
	if len(properties) > 0 {
		decl.Parameters = map[string]any{
			"type":       "object",
			"properties": properties,
		}
		if len(required) > 0 {
			decl.Parameters["required"] = required
		}
	}

	return decl
}
