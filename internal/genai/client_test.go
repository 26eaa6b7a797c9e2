package genai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"dreamwright/internal/domain"
)

func errorsAs(err error, target any) bool { return errors.As(err, target) }

func textResponse(text string) generateContentResponse {
	return generateContentResponse{Candidates: []candidate{{Content: content{Parts: []part{{Text: text}}}}}}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Options{
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
		CacheSize:  10,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestGenerateTextMemoized(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(textResponse("hello"))
	})

	ctx := context.Background()
	req := TextRequest{Prompt: "greet", Temperature: 0.7, MaxTokens: 128}

	for i := 0; i < 2; i++ {
		got, err := c.GenerateText(ctx, req)
		if err != nil {
			t.Fatalf("GenerateText: %v", err)
		}
		if got != "hello" {
			t.Fatalf("text = %q", got)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("api calls = %d, want 1", n)
	}

	req.Refresh = true
	if _, err := c.GenerateText(ctx, req); err != nil {
		t.Fatalf("GenerateText refresh: %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("api calls after refresh = %d, want 2", n)
	}
}

func TestGenerateStructuredStripsFences(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(textResponse("```json\n{\"title\": \"Dawn\"}\n```"))
	})

	var out struct {
		Title string `json:"title"`
	}
	err := c.GenerateStructured(context.Background(), StructuredRequest{
		Prompt:     "outline",
		SchemaName: "Chapter",
		Schema:     json.RawMessage(`{"type":"object"}`),
	}, &out)
	if err != nil {
		t.Fatalf("GenerateStructured: %v", err)
	}
	if out.Title != "Dawn" {
		t.Fatalf("title = %q", out.Title)
	}
}

func TestGenerateStructuredBadJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(textResponse("not json at all"))
	})

	var out map[string]any
	err := c.GenerateStructured(context.Background(), StructuredRequest{Prompt: "x", SchemaName: "Chapter"}, &out)
	var genErr *domain.GenerationError
	if !errorsAs(err, &genErr) {
		t.Fatalf("want GenerationError, got %v", err)
	}
}

func TestGenerateImageSendsLabeledReferences(t *testing.T) {
	dir := t.TempDir()
	refPath := filepath.Join(dir, "prev.png")
	if err := os.WriteFile(refPath, []byte("prev-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	var gotBody generateContentRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		img := base64.StdEncoding.EncodeToString([]byte("png-bytes"))
		_ = json.NewEncoder(w).Encode(generateContentResponse{Candidates: []candidate{{
			Content: content{Parts: []part{{InlineData: &inlineData{MimeType: "image/png", Data: img}}}},
		}}})
	})

	res, err := c.GenerateImage(context.Background(), ImageRequest{
		Prompt:      "two figures on a rooftop",
		References:  []Reference{{Path: refPath, Role: "previous panel for visual continuity"}},
		AspectRatio: "3:4",
		Resolution:  "1K",
		Style:       "webtoon",
	})
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if string(res.Data) != "png-bytes" {
		t.Fatalf("image data = %q", res.Data)
	}

	parts := gotBody.Contents[0].Parts
	if len(parts) != 3 {
		t.Fatalf("parts = %d, want label + image + prompt", len(parts))
	}
	if parts[0].Text != "[previous panel for visual continuity]:" {
		t.Fatalf("label = %q", parts[0].Text)
	}
	if parts[1].InlineData == nil {
		t.Fatal("reference image part missing")
	}
	if !strings.Contains(parts[2].Text, "maintain visual consistency") {
		t.Fatalf("final prompt = %q", parts[2].Text)
	}
	if !strings.HasPrefix(parts[2].Text, "Using the labeled reference images") {
		t.Fatalf("final prompt = %q", parts[2].Text)
	}

	input, ok := res.Metadata["input"].(map[string]any)
	if !ok {
		t.Fatalf("metadata input missing: %v", res.Metadata)
	}
	if !strings.HasPrefix(input["prompt"].(string), "webtoon style.") {
		t.Fatalf("prompt = %v", input["prompt"])
	}
}

func TestGenerateImageMissingReferenceSkipped(t *testing.T) {
	var gotBody generateContentRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		img := base64.StdEncoding.EncodeToString([]byte("x"))
		_ = json.NewEncoder(w).Encode(generateContentResponse{Candidates: []candidate{{
			Content: content{Parts: []part{{InlineData: &inlineData{Data: img}}}},
		}}})
	})

	_, err := c.GenerateImage(context.Background(), ImageRequest{
		Prompt:     "empty alley",
		References: []Reference{{Path: "/does/not/exist.png", Role: "location reference"}},
	})
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	parts := gotBody.Contents[0].Parts
	if len(parts) != 1 {
		t.Fatalf("parts = %d, want bare prompt when no reference loads", len(parts))
	}
	if parts[0].Text != "empty alley" {
		t.Fatalf("prompt = %q", parts[0].Text)
	}
}

func TestSafetyBlockIsGenerationError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(generateContentResponse{Candidates: []candidate{{FinishReason: "SAFETY"}}})
	})

	_, err := c.GenerateText(context.Background(), TextRequest{Prompt: "x"})
	var genErr *domain.GenerationError
	if !errorsAs(err, &genErr) {
		t.Fatalf("want GenerationError, got %v", err)
	}
}

func TestGenerateImageNoImageInResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(textResponse("sorry, text only"))
	})

	_, err := c.GenerateImage(context.Background(), ImageRequest{Prompt: "x"})
	var genErr *domain.GenerationError
	if !errorsAs(err, &genErr) {
		t.Fatalf("want GenerationError, got %v", err)
	}
}

func TestStripCodeFences(t *testing.T) {
	cases := []struct{ in, want string }{
		{"{\"a\":1}", "{\"a\":1}"},
		{"```json\n{\"a\":1}\n```", "{\"a\":1}"},
		{"```\n{\"a\":1}\n```", "{\"a\":1}"},
		{"```{\"a\":1}```", "{\"a\":1}"},
	}
	for _, c := range cases {
		if got := stripCodeFences(c.in); got != c.want {
			t.Fatalf("stripCodeFences(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
