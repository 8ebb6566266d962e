package providerhttp_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rowmill/rowmill/internal/adapters/providerhttp"
	"github.com/rowmill/rowmill/internal/domain/llm"
	"github.com/stretchr/testify/require"
)

func testReq() llm.Request {
	return llm.Request{
		Provider:   "openai",
		Model:      "gpt-4o-mini",
		SystemText: "You label reviews.",
		UserText:   "Classify: great product",
	}
}

func TestInvokeSendsGatewayRequestShape(t *testing.T) {
	var captured map[string]any
	var auth, contentType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		contentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"positive"}}]}`))
	}))
	defer srv.Close()

	client := providerhttp.New(providerhttp.Config{BaseURL: srv.URL + "/v1/", APIKey: "sk-test"})
	resp, err := client.Invoke(context.Background(), testReq())
	require.NoError(t, err)

	require.Equal(t, "Bearer sk-test", auth)
	require.Equal(t, "application/json", contentType)
	require.Equal(t, "openai/gpt-4o-mini", captured["model"])

	msgs := captured["messages"].([]any)
	require.Len(t, msgs, 2)
	require.Equal(t, "system", msgs[0].(map[string]any)["role"])
	require.Equal(t, "user", msgs[1].(map[string]any)["role"])

	// The raw payload passes through for the profile layer to extract.
	require.Empty(t, resp.Content)
	require.Contains(t, string(resp.Raw), "positive")
}

func TestInvokeOmitsUnsetOptions(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := providerhttp.New(providerhttp.Config{BaseURL: srv.URL})
	req := testReq()
	req.SystemText = ""
	_, err := client.Invoke(context.Background(), req)
	require.NoError(t, err)

	require.NotContains(t, captured, "temperature")
	require.NotContains(t, captured, "max_tokens")
	require.NotContains(t, captured, "top_p")
	require.Len(t, captured["messages"].([]any), 1, "no system message when system text is empty")
}

func TestInvokeParsesGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "12")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":"rate_limit_exceeded","message":"Rate limit reached","type":"requests"}}`))
	}))
	defer srv.Close()

	client := providerhttp.New(providerhttp.Config{BaseURL: srv.URL})
	_, err := client.Invoke(context.Background(), testReq())
	require.Error(t, err)

	var call *llm.CallError
	require.ErrorAs(t, err, &call)
	require.Equal(t, http.StatusTooManyRequests, call.StatusCode)
	require.Equal(t, "rate_limit_exceeded", call.Code)
	require.Equal(t, "Rate limit reached", call.Message)
	require.Equal(t, 12*time.Second, call.RetryAfter)

	cls := llm.Classify(err)
	require.Equal(t, llm.CategoryRateLimit, cls.Category)
	require.Equal(t, 12*time.Second, cls.RetryAfter)
}

func TestInvokeFallsBackToTypeAndRawBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	client := providerhttp.New(providerhttp.Config{BaseURL: srv.URL})
	_, err := client.Invoke(context.Background(), testReq())

	var call *llm.CallError
	require.ErrorAs(t, err, &call)
	require.Equal(t, "invalid_request_error", call.Code, "type fills in when code is absent")

	// Non-JSON error bodies keep the raw text.
	srv2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream connect error"))
	}))
	defer srv2.Close()

	client2 := providerhttp.New(providerhttp.Config{BaseURL: srv2.URL})
	_, err = client2.Invoke(context.Background(), testReq())
	require.ErrorAs(t, err, &call)
	require.Equal(t, http.StatusBadGateway, call.StatusCode)
	require.Equal(t, "upstream connect error", call.Message)
}

func TestInvokeTransportErrorsPassThrough(t *testing.T) {
	client := providerhttp.New(providerhttp.Config{
		BaseURL: "http://127.0.0.1:1", // nothing listens here
		Timeout: time.Second,
	})
	_, err := client.Invoke(context.Background(), testReq())
	require.Error(t, err)

	var call *llm.CallError
	require.False(t, errors.As(err, &call), "transport failures stay raw for the classifier")
	require.Equal(t, llm.CategoryNetworkError, llm.Classify(err).Category)
}
