package enrich_test

import (
	"testing"

	"github.com/rowmill/rowmill/internal/domain/enrich"
	"github.com/rowmill/rowmill/internal/domain/model"
	"github.com/stretchr/testify/require"
)

func TestFillTemplate(t *testing.T) {
	row := map[string]string{
		"product": "Thermal Mug",
		"review":  "lid leaks a little",
	}

	tests := []struct {
		name string
		tmpl string
		want string
	}{
		{
			name: "substitutes known variables",
			tmpl: "Review of {{product}}: {{review}}",
			want: "Review of Thermal Mug: lid leaks a little",
		},
		{
			name: "tolerates whitespace inside braces",
			tmpl: "{{ product }} / {{  review\t}}",
			want: "Thermal Mug / lid leaks a little",
		},
		{
			name: "unknown variable becomes empty string",
			tmpl: "Rating: {{rating}}!",
			want: "Rating: !",
		},
		{
			name: "repeated variable",
			tmpl: "{{product}} {{product}}",
			want: "Thermal Mug Thermal Mug",
		},
		{
			name: "no variables passes through",
			tmpl: "static text",
			want: "static text",
		},
		{
			name: "empty template",
			tmpl: "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, enrich.FillTemplate(tt.tmpl, row))
		})
	}
}

func TestFillTemplateSeesEarlierPromptOutput(t *testing.T) {
	// Prompt chaining: a prior prompt wrote "sentiment", a later template reads it.
	row := map[string]string{"review": "great grip", "sentiment": "positive"}
	got := enrich.FillTemplate("Why does {{review}} read {{sentiment}}?", row)
	require.Equal(t, "Why does great grip read positive?", got)
}

func TestTemplateVariables(t *testing.T) {
	vars := enrich.TemplateVariables("{{a}} and {{ b }} then {{a}} again")
	require.Equal(t, []string{"a", "b"}, vars)
	require.Nil(t, enrich.TemplateVariables("no tokens here"))
}

func TestIsFilled(t *testing.T) {
	filled := []string{"positive", " padded ", "0", "false"}
	for _, v := range filled {
		require.True(t, enrich.IsFilled(v), "%q should count as filled", v)
	}

	unfilled := []string{
		"", "   ",
		enrich.CellErrorSentinel, enrich.RowErrorSentinel,
		"#error", "#row_error",
		"n/a", "N/A", "na", "NA",
	}
	for _, v := range unfilled {
		require.False(t, enrich.IsFilled(v), "%q should not count as filled", v)
	}
}

func TestNormalizePromptText(t *testing.T) {
	require.Equal(t, "a\nb", enrich.NormalizePromptText("  a  \r\n\t b \r"))
	require.Equal(t, "one line", enrich.NormalizePromptText("one line"))
	require.Equal(t, "", enrich.NormalizePromptText(" \n \t "))
}

func TestDeriveStableAndSensitive(t *testing.T) {
	d := enrich.NewKeyDeriver("secret", "tenant-1")
	prompt := &model.PromptConfig{
		UserTemplate: "Summarize: {{review}}",
		OutputColumn: "summary",
		Provider:     "openai",
		Model:        "gpt-4o-mini",
	}

	base := d.Derive(prompt, "system", "Summarize:\ngreat grip")
	require.Len(t, base, 64)

	// Identical inputs derive the identical key.
	require.Equal(t, base, d.Derive(prompt, "system", "Summarize:\ngreat grip"))

	// Whitespace-only differences normalize away.
	require.Equal(t, base, d.Derive(prompt, "  system ", "Summarize:   \r\n  great grip\n"))

	// Any semantic input change produces a different key.
	require.NotEqual(t, base, d.Derive(prompt, "system", "Summarize: sizing runs small"))

	other := *prompt
	other.Model = "gpt-4o"
	require.NotEqual(t, base, d.Derive(&other, "system", "Summarize: great grip"))

	temp := *prompt
	temp.Options.Temperature = float64Ptr(0.2)
	require.NotEqual(t, base, d.Derive(&temp, "system", "Summarize: great grip"))
}

func TestDeriveIsTenantScoped(t *testing.T) {
	prompt := &model.PromptConfig{
		UserTemplate: "Summarize: {{review}}",
		OutputColumn: "summary",
		Provider:     "openai",
		Model:        "gpt-4o-mini",
	}
	a := enrich.NewKeyDeriver("secret", "tenant-a").Derive(prompt, "", "same text")
	b := enrich.NewKeyDeriver("secret", "tenant-b").Derive(prompt, "", "same text")
	require.NotEqual(t, a, b)

	// Rotating the engine secret invalidates every key.
	rotated := enrich.NewKeyDeriver("secret2", "tenant-a").Derive(prompt, "", "same text")
	require.NotEqual(t, a, rotated)
}

func TestCanonicalJSONOrdering(t *testing.T) {
	opts := model.RuntimeOptions{
		Temperature: float64Ptr(0.7),
		MaxTokens:   intPtr(256),
	}
	require.Equal(t, `{"temperature":0.7,"max_tokens":256}`, opts.CanonicalJSON())
	require.Equal(t, "{}", model.RuntimeOptions{}.CanonicalJSON())
}

func float64Ptr(f float64) *float64 { return &f }
func intPtr(i int) *int             { return &i }
