package testutil

import (
	"fmt"

	"github.com/rowmill/rowmill/internal/domain/model"
)

// JobRequestBuilder provides a fluent interface for building CreateJobRequest
// values for tests.
type JobRequestBuilder struct {
	req *model.CreateJobRequest
}

// NewJobRequest creates a JobRequestBuilder with a valid single-prompt default.
func NewJobRequest() *JobRequestBuilder {
	return &JobRequestBuilder{
		req: &model.CreateJobRequest{
			TenantID:  "tenant-1",
			Name:      "test enrichment",
			TotalRows: 3,
			InputKey:  "tenants/tenant-1/jobs/test/input.csv",
			Prompts: []model.PromptConfig{
				NewPrompt().Build(),
			},
		},
	}
}

// WithTenant sets the tenant ID.
func (b *JobRequestBuilder) WithTenant(tenantID string) *JobRequestBuilder {
	b.req.TenantID = tenantID
	return b
}

// WithName sets the job name.
func (b *JobRequestBuilder) WithName(name string) *JobRequestBuilder {
	b.req.Name = name
	return b
}

// WithTotalRows sets the row count.
func (b *JobRequestBuilder) WithTotalRows(n int) *JobRequestBuilder {
	b.req.TotalRows = n
	return b
}

// WithInputKey sets the input artifact key.
func (b *JobRequestBuilder) WithInputKey(key string) *JobRequestBuilder {
	b.req.InputKey = key
	return b
}

// WithPrompts replaces the prompt list.
func (b *JobRequestBuilder) WithPrompts(prompts ...model.PromptConfig) *JobRequestBuilder {
	b.req.Prompts = prompts
	return b
}

// AddPrompt appends a prompt.
func (b *JobRequestBuilder) AddPrompt(p model.PromptConfig) *JobRequestBuilder {
	b.req.Prompts = append(b.req.Prompts, p)
	return b
}

// Build returns the constructed CreateJobRequest.
func (b *JobRequestBuilder) Build() *model.CreateJobRequest {
	return b.req
}

// PromptBuilder provides a fluent interface for building PromptConfig values.
type PromptBuilder struct {
	p model.PromptConfig
}

// NewPrompt creates a PromptBuilder with valid defaults.
func NewPrompt() *PromptBuilder {
	return &PromptBuilder{
		p: model.PromptConfig{
			UserTemplate: "Summarize: {{review}}",
			OutputColumn: "summary",
			Provider:     "openai",
			Model:        "gpt-4o-mini",
		},
	}
}

// WithSystem sets the system template.
func (b *PromptBuilder) WithSystem(tmpl string) *PromptBuilder {
	b.p.SystemTemplate = tmpl
	return b
}

// WithUser sets the user template.
func (b *PromptBuilder) WithUser(tmpl string) *PromptBuilder {
	b.p.UserTemplate = tmpl
	return b
}

// WithOutputColumn sets the output column.
func (b *PromptBuilder) WithOutputColumn(col string) *PromptBuilder {
	b.p.OutputColumn = col
	return b
}

// WithProvider sets the provider and model.
func (b *PromptBuilder) WithProvider(provider, model string) *PromptBuilder {
	b.p.Provider = provider
	b.p.Model = model
	return b
}

// WithTemperature sets the temperature option.
func (b *PromptBuilder) WithTemperature(t float64) *PromptBuilder {
	b.p.Options.Temperature = &t
	return b
}

// WithMaxTokens sets the max tokens option.
func (b *PromptBuilder) WithMaxTokens(n int) *PromptBuilder {
	b.p.Options.MaxTokens = &n
	return b
}

// WithTopP sets the top_p option.
func (b *PromptBuilder) WithTopP(p float64) *PromptBuilder {
	b.p.Options.TopP = &p
	return b
}

// Build returns the constructed PromptConfig.
func (b *PromptBuilder) Build() model.PromptConfig {
	return b.p
}

// Common presets.

// SentimentJobRequest is a two-prompt request where the second prompt chains on
// the first prompt's output column.
func SentimentJobRequest(tenantID string) *model.CreateJobRequest {
	return NewJobRequest().
		WithTenant(tenantID).
		WithName("sentiment pipeline").
		WithInputKey(fmt.Sprintf("tenants/%s/jobs/sentiment/input.csv", tenantID)).
		WithPrompts(
			NewPrompt().
				WithUser("Classify the sentiment of: {{review}}").
				WithOutputColumn("sentiment").
				Build(),
			NewPrompt().
				WithUser("Explain in one line why {{review}} reads {{sentiment}}").
				WithOutputColumn("explanation").
				Build(),
		).
		Build()
}

// MultiProviderJobRequest spreads prompts across two providers, useful for
// rate-limiter and dedup-scope assertions.
func MultiProviderJobRequest(tenantID string) *model.CreateJobRequest {
	return NewJobRequest().
		WithTenant(tenantID).
		WithPrompts(
			NewPrompt().
				WithOutputColumn("summary").
				WithProvider("openai", "gpt-4o-mini").
				Build(),
			NewPrompt().
				WithUser("Translate to French: {{review}}").
				WithOutputColumn("french").
				WithProvider("anthropic", "claude-sonnet").
				Build(),
		).
		Build()
}
