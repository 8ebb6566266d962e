// Package llm holds the adapter-boundary decorators around the wire-level
// provider client: response normalization per provider profile, parameter
// capability checks, rate limiting, and classified retry.
package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/rowmill/rowmill/internal/domain/llm"
)

// Profile describes how to talk to one provider family: where the text content
// lives in its response payload and which runtime parameters it honors.
type Profile struct {
	Name string
	// ContentPath is a JMESPath expression locating the response text in the
	// provider's raw payload.
	ContentPath string
	// BlockReasonPath locates a safety-block reason, when the provider reports
	// blocks inside an otherwise successful payload.
	BlockReasonPath string
	// BlockValues restricts which values at BlockReasonPath count as a block.
	// Empty means any non-empty value does (e.g. gemini's blockReason, which is
	// absent on unblocked responses).
	BlockValues []string

	SupportsTemperature bool
	SupportsTopP        bool
	SupportsMaxTokens   bool
}

// Built-in profiles for the provider families the engine ships with. Unknown
// providers fall back to the OpenAI-compatible shape, which most gateways
// emulate.
var builtinProfiles = map[string]Profile{
	"openai": {
		Name:                "openai",
		ContentPath:         "choices[0].message.content",
		BlockReasonPath:     "choices[0].finish_reason",
		BlockValues:         []string{"content_filter"},
		SupportsTemperature: true,
		SupportsTopP:        true,
		SupportsMaxTokens:   true,
	},
	"anthropic": {
		Name:                "anthropic",
		ContentPath:         "content[0].text",
		BlockReasonPath:     "stop_reason",
		BlockValues:         []string{"refusal"},
		SupportsTemperature: true,
		SupportsTopP:        true,
		SupportsMaxTokens:   true,
	},
	"gemini": {
		Name:                "gemini",
		ContentPath:         "candidates[0].content.parts[0].text",
		BlockReasonPath:     "promptFeedback.blockReason",
		SupportsTemperature: true,
		SupportsTopP:        true,
		SupportsMaxTokens:   true,
	},
}

// ProfileFor returns the profile for a provider name, falling back to the
// OpenAI-compatible profile.
func ProfileFor(provider string) Profile {
	if p, ok := builtinProfiles[strings.ToLower(provider)]; ok {
		return p
	}
	p := builtinProfiles["openai"]
	p.Name = strings.ToLower(provider)
	return p
}

// CheckRequest rejects runtime parameters the provider does not honor, before
// any network round trip. The returned error classifies as an unsupported
// parameter.
func (p Profile) CheckRequest(req llm.Request) error {
	var unsupported string
	switch {
	case req.Temperature != nil && !p.SupportsTemperature:
		unsupported = "temperature"
	case req.TopP != nil && !p.SupportsTopP:
		unsupported = "top_p"
	case req.MaxTokens != nil && !p.SupportsMaxTokens:
		unsupported = "max_tokens"
	default:
		return nil
	}
	return &llm.CallError{
		Code:    "unsupported_parameter",
		Message: fmt.Sprintf("provider %s does not support parameter %q", p.Name, unsupported),
	}
}

// ExtractContent pulls the response text out of a provider's raw payload using
// the profile's content path.
func (p Profile) ExtractContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("empty payload from provider %s", p.Name)
	}
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", fmt.Errorf("decode payload from provider %s: %w", p.Name, err)
	}

	result, err := jmespath.Search(p.ContentPath, data)
	if err != nil {
		return "", fmt.Errorf("extract content (%s): %w", p.ContentPath, err)
	}
	text, ok := result.(string)
	if !ok || text == "" {
		return "", fmt.Errorf("no content at %s in provider %s payload", p.ContentPath, p.Name)
	}
	return text, nil
}

// Normalize fills resp.Content from resp.Raw when the wire client returned
// only the structured payload. A payload whose own metadata reports a safety
// block (transport success, blocked response) surfaces as a blocked CallError
// rather than a missing-content error, so classification sees the filter.
func (p Profile) Normalize(resp *llm.Response) error {
	if resp == nil {
		return fmt.Errorf("nil response from provider %s", p.Name)
	}
	if reason, blocked := p.blockReason(resp.Raw); blocked {
		return &llm.CallError{
			Blocked:     true,
			BlockReason: reason,
			Message:     fmt.Sprintf("provider %s blocked the response: %s", p.Name, reason),
		}
	}
	if resp.Content != "" {
		return nil
	}
	content, err := p.ExtractContent(resp.Raw)
	if err != nil {
		return err
	}
	resp.Content = content
	return nil
}

// blockReason evaluates BlockReasonPath against the raw payload and reports
// whether the value counts as a block under the profile's BlockValues.
func (p Profile) blockReason(raw json.RawMessage) (string, bool) {
	if p.BlockReasonPath == "" || len(raw) == 0 {
		return "", false
	}
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", false
	}
	result, err := jmespath.Search(p.BlockReasonPath, data)
	if err != nil {
		return "", false
	}
	reason, ok := result.(string)
	if !ok || reason == "" {
		return "", false
	}
	if len(p.BlockValues) == 0 {
		return reason, true
	}
	for _, v := range p.BlockValues {
		if strings.EqualFold(reason, v) {
			return reason, true
		}
	}
	return "", false
}
