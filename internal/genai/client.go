// Package genai wraps the Gemini generateContent API behind small
// generation interfaces. Every call is memoized through a named
// content-addressed cache, so retries and re-renders do not hit the API.
package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dreamwright/internal/cache"
	"dreamwright/internal/domain"
	"dreamwright/internal/infra"
)

// Options controls how the client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	ImageModel string
	HTTPClient *http.Client
	Logger     *infra.Logger

	// CacheDir enables durable memoization when non-empty; CacheSize caps
	// each of the three named caches (text, structured, image).
	CacheDir  string
	CacheSize int
}

// TextRequest asks for a free-form text completion.
type TextRequest struct {
	Prompt            string
	SystemInstruction string
	Temperature       float64
	MaxTokens         int
	Refresh           bool
}

// StructuredRequest asks for JSON output conforming to a schema.
type StructuredRequest struct {
	Prompt            string
	SystemInstruction string
	SchemaName        string
	Schema            json.RawMessage
	Temperature       float64
	Refresh           bool
}

// Reference is one consistency-anchor image supplied to image generation,
// labeled with the role it plays ("previous panel for visual continuity",
// "character reference for Mina", ...).
type Reference struct {
	Path string
	Role string
}

// ImageRequest asks for a rendered image.
type ImageRequest struct {
	Prompt      string
	References  []Reference
	AspectRatio string
	Resolution  string
	Style       string
	Refresh     bool
}

// ImageResult is the rendered image plus the generation metadata recorded in
// the artifact's sidecar file.
type ImageResult struct {
	Data     []byte
	Metadata map[string]any
}

// TextGenerator produces free-form text.
type TextGenerator interface {
	GenerateText(ctx context.Context, req TextRequest) (string, error)
}

// StructuredGenerator produces schema-conforming JSON decoded into out.
type StructuredGenerator interface {
	GenerateStructured(ctx context.Context, req StructuredRequest, out any) error
}

// ImageGenerator produces images.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req ImageRequest) (ImageResult, error)
}

// Client calls the Gemini generateContent API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	imageModel string
	httpClient *http.Client
	logger     *infra.Logger

	textCache       *cache.Cache
	structuredCache *cache.Cache
	imageCache      *cache.Cache
}

// NewClient constructs a Client and its three named caches.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("genai: api key is required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if opts.Model == "" {
		opts.Model = "gemini-2.5-flash"
	}
	if opts.ImageModel == "" {
		opts.ImageModel = "gemini-2.5-flash-image"
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 120 * time.Second}
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 100
	}

	c := &Client{
		apiKey:     opts.APIKey,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		model:      opts.Model,
		imageModel: opts.ImageModel,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
	}

	var err error
	for _, c2 := range []struct {
		name string
		dst  **cache.Cache
	}{
		{"text", &c.textCache},
		{"structured", &c.structuredCache},
		{"image", &c.imageCache},
	} {
		*c2.dst, err = cache.New(cache.Options{MaxSize: opts.CacheSize, Dir: opts.CacheDir, Name: c2.name})
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Model returns the configured text model name.
func (c *Client) Model() string { return c.model }

// ImageModel returns the configured image model name.
func (c *Client) ImageModel() string { return c.imageModel }

// ClearCaches empties all three named caches.
func (c *Client) ClearCaches() {
	c.textCache.Clear()
	c.structuredCache.Clear()
	c.imageCache.Clear()
}

// CacheStats reports the size of each named cache.
func (c *Client) CacheStats() map[string]int {
	return map[string]int{
		"text":       c.textCache.Len(),
		"structured": c.structuredCache.Len(),
		"image":      c.imageCache.Len(),
	}
}

// GenerateText generates a free-form text completion.
func (c *Client) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	args := cache.NewArgs().
		Str("prompt", req.Prompt).
		Str("system_instruction", req.SystemInstruction).
		Float("temperature", req.Temperature).
		Int("max_tokens", req.MaxTokens).
		Str("model", c.model)

	v, err := c.textCache.GetOrCompute(ctx, "generate_text", args, func(ctx context.Context) (cache.Value, error) {
		body := generateContentRequest{
			Contents: []content{{Parts: []part{{Text: req.Prompt}}}},
			GenerationConfig: &generationConfig{
				Temperature:     req.Temperature,
				MaxOutputTokens: req.MaxTokens,
			},
		}
		if req.SystemInstruction != "" {
			body.SystemInstruction = &content{Parts: []part{{Text: req.SystemInstruction}}}
		}
		resp, err := c.call(ctx, c.model, body)
		if err != nil {
			return cache.Value{}, err
		}
		text, err := resp.firstText()
		if err != nil {
			return cache.Value{}, err
		}
		return cache.Value{Data: []byte(text)}, nil
	}, req.Refresh)
	if err != nil {
		return "", err
	}
	return string(v.Data), nil
}

// GenerateStructured generates JSON conforming to req.Schema and decodes it
// into out. The memoized value is the cleaned JSON text, so cache hits and
// fresh calls decode identically.
func (c *Client) GenerateStructured(ctx context.Context, req StructuredRequest, out any) error {
	args := cache.NewArgs().
		Str("prompt", req.Prompt).
		Str("system_instruction", req.SystemInstruction).
		Str("schema", req.SchemaName).
		Bytes("schema_def", req.Schema).
		Float("temperature", req.Temperature).
		Str("model", c.model)

	v, err := c.structuredCache.GetOrCompute(ctx, "generate_structured", args, func(ctx context.Context) (cache.Value, error) {
		body := generateContentRequest{
			Contents: []content{{Parts: []part{{Text: req.Prompt}}}},
			GenerationConfig: &generationConfig{
				Temperature:      req.Temperature,
				ResponseMimeType: "application/json",
				ResponseSchema:   req.Schema,
			},
		}
		if req.SystemInstruction != "" {
			body.SystemInstruction = &content{Parts: []part{{Text: req.SystemInstruction}}}
		}
		resp, err := c.call(ctx, c.model, body)
		if err != nil {
			return cache.Value{}, err
		}
		text, err := resp.firstText()
		if err != nil {
			return cache.Value{}, err
		}
		return cache.Value{Data: []byte(stripCodeFences(text))}, nil
	}, req.Refresh)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(v.Data, out); err != nil {
		preview := string(v.Data)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		return &domain.GenerationError{
			Message: fmt.Sprintf("response does not match %s schema (preview: %s)", req.SchemaName, preview),
			Err:     err,
		}
	}
	return nil
}

// GenerateImage renders an image, feeding reference images as labeled parts
// so the model can hold character and scene appearance steady.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (ImageResult, error) {
	fullPrompt := req.Prompt
	if req.Style != "" {
		fullPrompt = req.Style + " style. " + fullPrompt
	}

	refPaths := make([]string, len(req.References))
	refRoles := make([]string, len(req.References))
	for i, r := range req.References {
		refPaths[i] = r.Path
		refRoles[i] = r.Role
	}

	args := cache.NewArgs().
		Str("prompt", fullPrompt).
		Files("references", refPaths).
		Strs("reference_roles", refRoles).
		Str("aspect_ratio", req.AspectRatio).
		Str("resolution", req.Resolution).
		Str("model", c.imageModel)

	v, err := c.imageCache.GetOrCompute(ctx, "generate_image", args, func(ctx context.Context) (cache.Value, error) {
		return c.renderImage(ctx, fullPrompt, req)
	}, req.Refresh)
	if err != nil {
		return ImageResult{}, err
	}
	return ImageResult{Data: v.Data, Metadata: v.Metadata}, nil
}

func (c *Client) renderImage(ctx context.Context, fullPrompt string, req ImageRequest) (cache.Value, error) {
	var parts []part
	loaded := make([]map[string]any, 0, len(req.References))
	anyLoaded := false

	for _, ref := range req.References {
		p, err := loadReferencePart(ref.Path)
		if err != nil {
			loaded = append(loaded, map[string]any{"path": ref.Path, "role": ref.Role, "loaded": false})
			continue
		}
		parts = append(parts, part{Text: "[" + ref.Role + "]:"}, *p)
		loaded = append(loaded, map[string]any{"path": ref.Path, "role": ref.Role, "loaded": true})
		anyLoaded = true
	}

	finalPrompt := fullPrompt
	if anyLoaded {
		finalPrompt = "Using the labeled reference images above to maintain visual consistency: " + fullPrompt
	}
	parts = append(parts, part{Text: finalPrompt})

	body := generateContentRequest{
		Contents: []content{{Parts: parts}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"IMAGE", "TEXT"},
			ImageConfig: &imageConfig{
				AspectRatio: req.AspectRatio,
				ImageSize:   req.Resolution,
			},
		},
	}

	resp, err := c.call(ctx, c.imageModel, body)
	if err != nil {
		return cache.Value{}, err
	}

	metadata := map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"input": map[string]any{
			"prompt":       fullPrompt,
			"final_prompt": finalPrompt,
			"references":   loaded,
			"model":        c.imageModel,
			"config": map[string]any{
				"aspect_ratio": req.AspectRatio,
				"resolution":   req.Resolution,
				"style":        req.Style,
			},
		},
	}
	output := map[string]any{}
	cand := resp.Candidates[0]
	if cand.FinishReason != "" {
		output["finish_reason"] = cand.FinishReason
	}
	if resp.UsageMetadata != nil {
		output["usage"] = map[string]any{
			"prompt_tokens":     resp.UsageMetadata.PromptTokenCount,
			"candidates_tokens": resp.UsageMetadata.CandidatesTokenCount,
			"total_tokens":      resp.UsageMetadata.TotalTokenCount,
		}
	}

	var imageData []byte
	var texts []string
	for _, p := range cand.Content.Parts {
		if p.InlineData != nil {
			decoded, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return cache.Value{}, &domain.GenerationError{Message: "invalid inline image data", Err: err}
			}
			imageData = decoded
		} else if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	if len(texts) > 0 {
		output["generated_text"] = strings.Join(texts, "\n")
	}
	metadata["output"] = output

	if imageData == nil {
		return cache.Value{}, &domain.GenerationError{Message: "no image generated in response"}
	}
	return cache.Value{Data: imageData, Metadata: metadata}, nil
}

// call performs one generateContent request and applies the shared response
// checks (HTTP status, candidate presence, safety blocks).
func (c *Client) call(ctx context.Context, model string, body generateContentRequest) (*generateContentResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("genai: encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, model, url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("genai: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.GenerationError{Message: "api call failed", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, &domain.GenerationError{Message: "read response", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		preview := string(data)
		if len(preview) > 300 {
			preview = preview[:300]
		}
		return nil, &domain.GenerationError{Message: fmt.Sprintf("api returned %d: %s", resp.StatusCode, preview)}
	}

	var out generateContentResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &domain.GenerationError{Message: "decode response", Err: err}
	}
	if len(out.Candidates) == 0 {
		return nil, &domain.GenerationError{Message: "response has no candidates; content may have been blocked"}
	}
	if strings.Contains(out.Candidates[0].FinishReason, "SAFETY") {
		return nil, &domain.GenerationError{Message: "response blocked by safety filters: " + out.Candidates[0].FinishReason}
	}
	return &out, nil
}

// loadReferencePart reads an image file into an inline-data part.
func loadReferencePart(path string) (*part, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	mime := map[string]string{
		".png":  "image/png",
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".webp": "image/webp",
	}[strings.ToLower(filepath.Ext(path))]
	if mime == "" {
		mime = "image/png"
	}
	return &part{InlineData: &inlineData{MimeType: mime, Data: base64.StdEncoding.EncodeToString(data)}}, nil
}

// stripCodeFences removes a surrounding ```json ... ``` fence when present.
func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if i := strings.IndexByte(text, '\n'); i != -1 {
			text = text[i+1:]
		} else {
			text = text[3:]
		}
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

var (
	_ TextGenerator       = (*Client)(nil)
	_ StructuredGenerator = (*Client)(nil)
	_ ImageGenerator      = (*Client)(nil)
)
