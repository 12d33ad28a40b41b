package assist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultModel   = "gemini-3-flash-preview"
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
)

// Gemini calls the generateContent REST endpoint of the Gemini API.
type Gemini struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewGemini(apiKey, baseURL string, timeout time.Duration) *Gemini {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := &http.Client{}
	if timeout > 0 {
		client.Timeout = timeout
	}
	return &Gemini{
		httpClient: client,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	ResponseMIMEType string `json:"responseMimeType,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func (g *Gemini) endpoint(model string) string {
	return fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.baseURL, url.PathEscape(model))
}

func (g *Gemini) Generate(ctx context.Context, request GenerateRequest) (*GenerateResponse, error) {
	if g.apiKey == "" {
		return nil, ErrNoCredential
	}
	model := request.Model
	if model == "" {
		model = DefaultModel
	}

	wireRequest := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: request.Prompt}}}},
	}
	if request.ResponseMIMEType != "" {
		wireRequest.GenerationConfig = &geminiGenerationConfig{ResponseMIMEType: request.ResponseMIMEType}
	}
	body, err := json.Marshal(wireRequest)
	if err != nil {
		return nil, fmt.Errorf("assist/gemini: marshaling request: %w", err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint(model), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("assist/gemini: creating request: %w", err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("x-goog-api-key", g.apiKey)

	httpResponse, err := g.httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("assist/gemini: sending request: %w", err)
	}
	defer httpResponse.Body.Close()

	if httpResponse.StatusCode != http.StatusOK {
		return nil, readGeminiError(httpResponse)
	}

	var wireResponse geminiResponse
	if err := json.NewDecoder(httpResponse.Body).Decode(&wireResponse); err != nil {
		return nil, fmt.Errorf("assist/gemini: decoding response: %w", err)
	}
	if wireResponse.PromptFeedback != nil && wireResponse.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("assist/gemini: prompt blocked: %s", wireResponse.PromptFeedback.BlockReason)
	}
	if len(wireResponse.Candidates) == 0 {
		return nil, fmt.Errorf("assist/gemini: response has no candidates")
	}

	var text strings.Builder
	for _, part := range wireResponse.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	return &GenerateResponse{Text: text.String()}, nil
}

func readGeminiError(httpResponse *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(httpResponse.Body, 4096))

	var wireError struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &wireError) == nil && wireError.Error.Message != "" {
		return &ProviderError{
			StatusCode: httpResponse.StatusCode,
			Status:     wireError.Error.Status,
			Message:    wireError.Error.Message,
		}
	}
	return &ProviderError{
		StatusCode: httpResponse.StatusCode,
		Message:    string(body),
	}
}
