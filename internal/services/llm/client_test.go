package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fission/internal/services"
)

func completionServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(server.Close)
	return NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
}

func writeContent(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()
	payload := map[string]any{
		"choices": []any{
			map[string]any{
				"finish_reason": "stop",
				"message": map[string]any{
					"content": content,
				},
			},
		},
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		t.Fatalf("encode response: %v", err)
	}
}

func TestClientHealthCheck(t *testing.T) {
	client := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test" {
			t.Errorf("unexpected auth header %q", got)
		}
		writeContent(t, w, `{"ok":true}`)
	})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestClientHealthCheckCodeFence(t *testing.T) {
	client := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeContent(t, w, "```json\n{\"ok\":true}\n```")
	})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestClientRequestsJSONFormat(t *testing.T) {
	client := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.ResponseFormat["type"] != jsonResponseType {
			t.Errorf("expected json response format, got %v", req.ResponseFormat)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		writeContent(t, w, `[]`)
	})
	content, err := client.CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("CompleteJSON returned error: %v", err)
	}
	if content != "[]" {
		t.Fatalf("unexpected content %q", content)
	}
}

func TestClientCompleteTextOmitsFormat(t *testing.T) {
	client := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		_ = json.NewDecoder(r.Body).Decode(&raw)
		if _, ok := raw["response_format"]; ok {
			t.Errorf("text completion should not request a response format")
		}
		writeContent(t, w, "A short caption.")
	})
	content, err := client.CompleteText(context.Background(), "system", "user")
	if err != nil || content != "A short caption." {
		t.Fatalf("content=%q err=%v", content, err)
	}
}

func TestClientClassifiesStatusCodes(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		sentinel  error
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, ErrServiceUnavailable, true},
		{"server error", http.StatusServiceUnavailable, ErrServiceUnavailable, true},
		{"request timeout", http.StatusRequestTimeout, ErrServiceUnavailable, true},
		{"unauthorized", http.StatusUnauthorized, ErrRequestRejected, false},
		{"bad request", http.StatusBadRequest, ErrRequestRejected, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
			})
			_, err := client.CompleteJSON(context.Background(), "system", "user")
			if !errors.Is(err, tc.sentinel) {
				t.Fatalf("expected %v, got %v", tc.sentinel, err)
			}
			if services.Retryable(err) != tc.retryable {
				t.Fatalf("retryable=%v, want %v (err=%v)", services.Retryable(err), tc.retryable, err)
			}
		})
	}
}

func TestClientExposesRetryAfter(t *testing.T) {
	client := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := client.CompleteJSON(context.Background(), "system", "user")
	var hinted interface{ RetryAfter() time.Duration }
	if !errors.As(err, &hinted) || hinted.RetryAfter() != 2*time.Second {
		t.Fatalf("expected 2s retry hint, got %v", err)
	}
}

func TestClientEmptyContentIsTransient(t *testing.T) {
	client := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeContent(t, w, "")
	})
	_, err := client.CompleteJSON(context.Background(), "system", "user")
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
	var empty *emptyContentError
	if !errors.As(err, &empty) || empty.FinishReason != "stop" || !strings.Contains(empty.Snippet, "choices") {
		t.Fatalf("expected empty content detail, got %v", err)
	}
}

func TestClientMalformedEnvelope(t *testing.T) {
	client := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>gateway</html>"))
	})
	_, err := client.CompleteJSON(context.Background(), "system", "user")
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestClientToolCallArguments(t *testing.T) {
	client := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{
			"choices": []any{
				map[string]any{
					"message": map[string]any{
						"tool_calls": []any{
							map[string]any{
								"type":     "function",
								"function": map[string]any{"name": "emit", "arguments": `{"moments":[]}`},
							},
						},
					},
				},
			},
		}
		_ = json.NewEncoder(w).Encode(payload)
	})
	content, err := client.CompleteJSON(context.Background(), "system", "user")
	if err != nil || content != `{"moments":[]}` {
		t.Fatalf("content=%q err=%v", content, err)
	}
}

func TestClientRequiresAPIKey(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	_, err := client.CompleteJSON(context.Background(), "system", "user")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestDecodeLLMJSON(t *testing.T) {
	var out []int
	if err := DecodeLLMJSON("Here you go:\n```json\n[1,2]\n```", &out); err != nil {
		t.Fatalf("DecodeLLMJSON: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("unexpected decode result %v", out)
	}
	if err := DecodeLLMJSON("   ", &out); err == nil {
		t.Fatal("expected error for empty payload")
	}
	if err := DecodeLLMJSON("no json at all", &out); err == nil {
		t.Fatal("expected error for prose")
	}
}
