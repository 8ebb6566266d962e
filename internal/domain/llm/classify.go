package llm

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// Category is the normalized failure category for a provider call.
type Category string

const (
	CategoryTimeout              Category = "TIMEOUT"
	CategoryRateLimit            Category = "RATE_LIMIT"
	CategoryAuthError            Category = "AUTH_ERROR"
	CategoryAPIError             Category = "API_ERROR"
	CategoryServerError          Category = "SERVER_ERROR"
	CategoryNetworkError         Category = "NETWORK_ERROR"
	CategoryTokenLimit           Category = "TOKEN_LIMIT"
	CategoryUnsupportedParameter Category = "UNSUPPORTED_PARAMETER"
	CategoryQuotaExceeded        Category = "QUOTA_EXCEEDED"
	CategoryContentFiltered      Category = "CONTENT_FILTERED"
	CategoryUnknown              Category = "UNKNOWN"
)

// PausesJob reports whether the category must halt the whole job for human
// intervention. Everything else is handled at single-cell granularity.
func (c Category) PausesJob() bool {
	return c == CategoryAuthError || c == CategoryQuotaExceeded || c == CategoryContentFiltered
}

// BackoffEligible reports whether the adapter retry layer may retry this
// category with exponential backoff.
func (c Category) BackoffEligible() bool {
	switch c {
	case CategoryRateLimit, CategoryServerError, CategoryNetworkError, CategoryTimeout:
		return true
	}
	return false
}

// Classification is the fully resolved view of one provider failure.
type Classification struct {
	Category    Category
	Retryable   bool
	UserMessage string
	TechMessage string
	// RetryAfter carries a provider-declared delay for rate limits, zero otherwise.
	RetryAfter time.Duration
}

// Classify maps a raw provider failure to its classification. Ordering matters:
// the most specific signal wins, so timeout and rate-limit checks run before the
// generic status-code buckets.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Category: CategoryUnknown}
	}

	var call *CallError
	if !errors.As(err, &call) {
		call = &CallError{Message: err.Error()}
	}
	msg := strings.ToLower(call.Message + " " + call.Code)

	switch {
	case isTimeout(err, call, msg):
		return classification(CategoryTimeout, true,
			"The provider timed out. The call will be retried automatically.", err)

	case isRateLimit(call, msg):
		c := classification(CategoryRateLimit, true,
			"The provider is rate limiting requests. Processing slows down and retries automatically.", err)
		c.RetryAfter = call.RetryAfter
		return c

	case isAuthError(call, msg):
		return classification(CategoryAuthError, false,
			"The provider rejected the configured credentials. Fix the API key or organization settings, then resume.", err)

	case isQuotaExceeded(call, msg):
		return classification(CategoryQuotaExceeded, false,
			"The provider account is out of quota or has a billing problem. Fix billing, then resume.", err)

	case isContentFiltered(call, msg):
		return classification(CategoryContentFiltered, false,
			"The provider's safety filter blocked this content. Review the prompt, then resume or stop.", err)

	case isTokenLimit(msg):
		return classification(CategoryTokenLimit, false,
			"The filled prompt exceeds the model's token limit. The cell is marked and processing continues.", err)

	case isUnsupportedParameter(msg):
		return classification(CategoryUnsupportedParameter, false,
			"The model does not support one of the configured options. The cell is marked and processing continues.", err)

	case isNetworkError(err, call, msg):
		return classification(CategoryNetworkError, true,
			"A network problem interrupted the provider call. The call will be retried automatically.", err)

	case call.StatusCode >= 500:
		return classification(CategoryServerError, true,
			"The provider returned a server error. The call will be retried automatically.", err)

	case call.StatusCode >= 400:
		return classification(CategoryAPIError, false,
			"The provider rejected the request. The cell is marked and processing continues.", err)

	default:
		return classification(CategoryUnknown, false,
			"An unexpected provider error occurred. The cell is marked and processing continues.", err)
	}
}

func classification(cat Category, retryable bool, userMsg string, err error) Classification {
	return Classification{
		Category:    cat,
		Retryable:   retryable,
		UserMessage: userMsg,
		TechMessage: err.Error(),
	}
}

func isTimeout(err error, call *CallError, msg string) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if call.StatusCode == 408 {
		return true
	}
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "timed out") ||
		strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "request aborted")
}

func isRateLimit(call *CallError, msg string) bool {
	// Quota exhaustion often arrives on the 429 wire shape (OpenAI sends
	// insufficient_quota with 429); the billing signal wins over the status
	// bucket so the job pauses instead of retrying forever.
	if call.Code == "insufficient_quota" ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "billing") {
		return false
	}
	if call.StatusCode == 429 {
		return true
	}
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "rate_limit") ||
		strings.Contains(msg, "too many requests")
}

func isAuthError(call *CallError, msg string) bool {
	if call.StatusCode == 401 || call.StatusCode == 403 {
		return true
	}
	return strings.Contains(msg, "invalid api key") ||
		strings.Contains(msg, "invalid_api_key") ||
		strings.Contains(msg, "incorrect api key") ||
		strings.Contains(msg, "authentication") ||
		strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "organization must be verified")
}

func isQuotaExceeded(call *CallError, msg string) bool {
	if call.Code == "insufficient_quota" {
		return true
	}
	return strings.Contains(msg, "quota") ||
		strings.Contains(msg, "billing") ||
		strings.Contains(msg, "payment required") ||
		call.StatusCode == 402
}

func isContentFiltered(call *CallError, msg string) bool {
	if call.Blocked {
		return true
	}
	return strings.Contains(msg, "content_filter") ||
		strings.Contains(msg, "content filter") ||
		strings.Contains(msg, "content policy") ||
		strings.Contains(msg, "safety") ||
		strings.Contains(msg, "blocked by")
}

func isTokenLimit(msg string) bool {
	return strings.Contains(msg, "context length") ||
		strings.Contains(msg, "context_length") ||
		strings.Contains(msg, "maximum context") ||
		strings.Contains(msg, "token limit") ||
		strings.Contains(msg, "max_tokens") ||
		strings.Contains(msg, "too many tokens")
}

func isUnsupportedParameter(msg string) bool {
	return strings.Contains(msg, "unsupported parameter") ||
		strings.Contains(msg, "unsupported_parameter") ||
		strings.Contains(msg, "unsupported value") ||
		strings.Contains(msg, "does not support")
}

func isNetworkError(err error, call *CallError, msg string) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	if call.StatusCode != 0 {
		return false
	}
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "network") ||
		strings.Contains(msg, "econnrefused") ||
		strings.Contains(msg, "broken pipe")
}
