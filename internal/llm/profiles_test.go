package llm_test

import (
	"encoding/json"
	"testing"

	domainllm "github.com/rowmill/rowmill/internal/domain/llm"
	adapter "github.com/rowmill/rowmill/internal/llm"
	"github.com/stretchr/testify/require"
)

func TestProfileForFallsBackToOpenAIShape(t *testing.T) {
	p := adapter.ProfileFor("OpenAI")
	require.Equal(t, "openai", p.Name)

	unknown := adapter.ProfileFor("mistral")
	require.Equal(t, "mistral", unknown.Name)
	require.Equal(t, "choices[0].message.content", unknown.ContentPath)
}

func TestExtractContentPerProvider(t *testing.T) {
	tests := []struct {
		provider string
		payload  string
		want     string
	}{
		{
			provider: "openai",
			payload:  `{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`,
			want:     "hello",
		},
		{
			provider: "anthropic",
			payload:  `{"content":[{"type":"text","text":"bonjour"}],"stop_reason":"end_turn"}`,
			want:     "bonjour",
		},
		{
			provider: "gemini",
			payload:  `{"candidates":[{"content":{"parts":[{"text":"hallo"}]}}]}`,
			want:     "hallo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			p := adapter.ProfileFor(tt.provider)
			got, err := p.ExtractContent(json.RawMessage(tt.payload))
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestExtractContentErrors(t *testing.T) {
	p := adapter.ProfileFor("openai")

	_, err := p.ExtractContent(nil)
	require.Error(t, err)

	_, err = p.ExtractContent(json.RawMessage(`not json`))
	require.Error(t, err)

	_, err = p.ExtractContent(json.RawMessage(`{"choices":[]}`))
	require.Error(t, err)
}

func TestCheckRequestRejectsUnsupportedParameter(t *testing.T) {
	p := adapter.Profile{Name: "strict", ContentPath: "x"}

	temp := 0.7
	err := p.CheckRequest(domainllm.Request{Temperature: &temp})
	require.Error(t, err)

	var call *domainllm.CallError
	require.ErrorAs(t, err, &call)
	require.Equal(t, "unsupported_parameter", call.Code)

	cls := domainllm.Classify(err)
	require.Equal(t, domainllm.CategoryUnsupportedParameter, cls.Category)
	require.False(t, cls.Retryable)
}

func TestNormalizeSurfacesSafetyBlock(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		payload  string
		reason   string
	}{
		{
			name:     "gemini prompt feedback block",
			provider: "gemini",
			payload:  `{"promptFeedback":{"blockReason":"SAFETY"},"candidates":[]}`,
			reason:   "SAFETY",
		},
		{
			name:     "openai content filter finish reason",
			provider: "openai",
			payload:  `{"choices":[{"message":{"content":""},"finish_reason":"content_filter"}]}`,
			reason:   "content_filter",
		},
		{
			name:     "anthropic refusal stop reason",
			provider: "anthropic",
			payload:  `{"content":[],"stop_reason":"refusal"}`,
			reason:   "refusal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := adapter.ProfileFor(tt.provider)
			err := p.Normalize(&domainllm.Response{Raw: json.RawMessage(tt.payload)})
			require.Error(t, err)

			var call *domainllm.CallError
			require.ErrorAs(t, err, &call)
			require.True(t, call.Blocked)
			require.Equal(t, tt.reason, call.BlockReason)

			c := domainllm.Classify(err)
			require.Equal(t, domainllm.CategoryContentFiltered, c.Category)
			require.True(t, c.Category.PausesJob())
		})
	}
}

func TestNormalizeIgnoresBenignFinishReasons(t *testing.T) {
	// Ordinary terminal markers at the block-reason path are not blocks.
	p := adapter.ProfileFor("anthropic")
	resp := &domainllm.Response{Raw: json.RawMessage(`{"content":[{"type":"text","text":"fine"}],"stop_reason":"end_turn"}`)}
	require.NoError(t, p.Normalize(resp))
	require.Equal(t, "fine", resp.Content)

	p = adapter.ProfileFor("openai")
	resp = &domainllm.Response{Raw: json.RawMessage(`{"choices":[{"message":{"content":"ok"},"finish_reason":"stop"}]}`)}
	require.NoError(t, p.Normalize(resp))
	require.Equal(t, "ok", resp.Content)
}

func TestNormalizeFillsContentFromRaw(t *testing.T) {
	p := adapter.ProfileFor("openai")

	resp := &domainllm.Response{Raw: json.RawMessage(`{"choices":[{"message":{"content":"filled"}}]}`)}
	require.NoError(t, p.Normalize(resp))
	require.Equal(t, "filled", resp.Content)

	// Pre-normalized responses pass through untouched.
	resp = &domainllm.Response{Content: "already here"}
	require.NoError(t, p.Normalize(resp))
	require.Equal(t, "already here", resp.Content)

	require.Error(t, p.Normalize(nil))
}
