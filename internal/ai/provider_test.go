package ai

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// chatServer answers chat completion requests with content and captures the
// last request body.
func chatServer(t *testing.T, content string, captured *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if captured != nil {
			var m map[string]any
			_ = json.Unmarshal(body, &m)
			*captured = m
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewProvider(t *testing.T) {
	cfg := ProviderConfig{APIKey: "k", BaseURL: "http://localhost", Model: "m"}

	p, err := NewProvider("openai", cfg)
	require.NoError(t, err)
	require.Equal(t, "openai", p.Name())

	p, err = NewProvider("compat", cfg)
	require.NoError(t, err)
	require.Equal(t, "compat", p.Name())

	_, err = NewProvider("other", cfg)
	require.ErrorIs(t, err, ErrUnknownProvider)

	_, err = NewProvider("openai", ProviderConfig{Model: "m"})
	require.Error(t, err)
	_, err = NewProvider("compat", ProviderConfig{APIKey: "k", Model: "m"})
	require.Error(t, err)
}

func TestOpenAIProvider_Completion(t *testing.T) {
	var req map[string]any
	srv := chatServer(t, "yes", &req)

	p, err := NewOpenAIProvider(ProviderConfig{APIKey: "k", BaseURL: srv.URL + "/v1/", Model: "text-model"})
	require.NoError(t, err)

	ok, err := p.ClassifyIsProductRequest(t.Context(), "I want to buy shoes")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "text-model", req["model"])
}

func TestOpenAIProvider_VisionUsesDataURL(t *testing.T) {
	var req map[string]any
	srv := chatServer(t, `{"amount": 10, "reference_id": "R1", "transaction_date": "2024-01-01"}`, &req)

	p, err := NewOpenAIProvider(ProviderConfig{APIKey: "k", BaseURL: srv.URL + "/v1/", Model: "text-model", VisionModel: "vision-model"})
	require.NoError(t, err)

	f, err := p.ExtractDepositFields(t.Context(), DepositInput{Image: []byte("png"), MIMEType: "image/png"})
	require.NoError(t, err)
	require.True(t, f.Complete())
	require.Equal(t, "vision-model", req["model"])

	raw, _ := json.Marshal(req["messages"])
	require.Contains(t, string(raw), "data:image/png;base64,")
}

func TestCompatProvider_Completion(t *testing.T) {
	var req map[string]any
	srv := chatServer(t, "negative", &req)

	p, err := NewCompatProvider(ProviderConfig{APIKey: "k", BaseURL: srv.URL + "/v1", Model: "gemini-test"})
	require.NoError(t, err)

	s, err := p.ClassifyPositiveNegative(t.Context(), "no thanks")
	require.NoError(t, err)
	require.Equal(t, SentimentNegative, s)
	require.Equal(t, "gemini-test", req["model"])
}

func TestCompatProvider_VisionUsesMultiContent(t *testing.T) {
	var req map[string]any
	srv := chatServer(t, `{"amount": null}`, &req)

	p, err := NewCompatProvider(ProviderConfig{APIKey: "k", BaseURL: srv.URL + "/v1", Model: "m"})
	require.NoError(t, err)

	f, err := p.ExtractDepositFields(t.Context(), DepositInput{Text: "bukti transfer", Image: []byte("jpg"), MIMEType: "image/jpeg"})
	require.NoError(t, err)
	require.False(t, f.Complete())

	raw, _ := json.Marshal(req["messages"])
	require.Contains(t, string(raw), "image_url")
	require.Contains(t, string(raw), "data:image/jpeg;base64,")
}

func TestDataURL_DefaultsToJPEG(t *testing.T) {
	require.True(t, strings.HasPrefix(dataURL("", []byte("x")), "data:image/jpeg;base64,"))
}
