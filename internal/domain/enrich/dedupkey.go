package enrich

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/rowmill/rowmill/internal/domain/model"
)

// KeyDeriver derives dedup keys for filled prompts. The HMAC key is salted per
// tenant so identical prompts from different tenants never share cache entries,
// and so raw prompt text is not recoverable from a key.
type KeyDeriver struct {
	salt []byte
}

// NewKeyDeriver builds a deriver for one tenant. The tenant salt is itself an
// HMAC of the tenant id under the engine-wide secret, so rotating the secret
// invalidates every derived key at once.
func NewKeyDeriver(secret, tenantID string) *KeyDeriver {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(tenantID))
	return &KeyDeriver{salt: mac.Sum(nil)}
}

// Derive computes the dedup key for a prompt filled against one row. Two calls
// that would reach the provider with the same provider, model, options and
// normalized text map to the same key.
func (d *KeyDeriver) Derive(prompt *model.PromptConfig, systemText, userText string) string {
	mac := hmac.New(sha256.New, d.salt)
	for _, part := range []string{
		prompt.Provider,
		prompt.Model,
		prompt.Options.CanonicalJSON(),
		prompt.OutputColumn,
		NormalizePromptText(systemText),
		NormalizePromptText(userText),
	} {
		mac.Write([]byte(part))
		mac.Write([]byte{0})
	}
	return hex.EncodeToString(mac.Sum(nil))
}

var (
	lineBreakSpace = regexp.MustCompile(`[ \t]*\n[ \t]*`)
)

// NormalizePromptText canonicalizes filled template text before hashing: trims
// leading/trailing whitespace, folds all line-break styles to "\n", and strips
// run-on spaces and tabs around line breaks. Duplicate input values that differ
// only in incidental whitespace therefore dedup to one provider call.
func NormalizePromptText(text string) string {
	t := strings.ReplaceAll(text, "\r\n", "\n")
	t = strings.ReplaceAll(t, "\r", "\n")
	t = lineBreakSpace.ReplaceAllString(t, "\n")
	return strings.TrimSpace(t)
}
