package config

import "time"

// EngineConfig contains enrichment worker configuration.
type EngineConfig struct {
	// Lease is the per-job ownership window; a worker that misses renewals
	// for this long loses the job to the reaper.
	Lease time.Duration `env:"ENGINE_LEASE" envDefault:"30s"`

	// Concurrency is the number of independent job loops in this process.
	Concurrency int `env:"ENGINE_CONCURRENCY" envDefault:"2"`

	// TenantAdmissionLimit caps concurrently processing jobs per tenant;
	// zero disables the cap.
	TenantAdmissionLimit int `env:"ENGINE_TENANT_ADMISSION_LIMIT" envDefault:"2"`

	// DedupSecret keys the per-tenant dedup hash. Must be set in production;
	// an empty secret still works but makes keys predictable.
	DedupSecret string `env:"ENGINE_DEDUP_SECRET" envDefault:""`

	// Provider retry/backoff settings.
	RetryMaxAttempts int           `env:"ENGINE_RETRY_MAX_ATTEMPTS" envDefault:"3"`
	RetryBaseDelay   time.Duration `env:"ENGINE_RETRY_BASE_DELAY"   envDefault:"500ms"`
	RetryMaxDelay    time.Duration `env:"ENGINE_RETRY_MAX_DELAY"    envDefault:"30s"`

	// ProviderRPS caps calls per second per provider; zero disables limiting.
	ProviderRPS   float64 `env:"ENGINE_PROVIDER_RPS"   envDefault:"0"`
	ProviderBurst int     `env:"ENGINE_PROVIDER_BURST" envDefault:"1"`

	// GatewayURL is the OpenAI-compatible chat-completions gateway the worker
	// sends provider calls through.
	GatewayURL     string        `env:"ENGINE_GATEWAY_URL"     envDefault:"http://localhost:4000/v1"`
	GatewayAPIKey  string        `env:"ENGINE_GATEWAY_API_KEY" envDefault:""`
	GatewayTimeout time.Duration `env:"ENGINE_GATEWAY_TIMEOUT" envDefault:"2m"`
}

// Sanitize applies guardrails to engine configuration values.
func (e *EngineConfig) Sanitize() {
	if e.Lease < 5*time.Second {
		e.Lease = 5 * time.Second
	}
	if e.Concurrency < 1 {
		e.Concurrency = 1
	}
	if e.TenantAdmissionLimit < 0 {
		e.TenantAdmissionLimit = 0
	}
	if e.RetryMaxAttempts < 1 {
		e.RetryMaxAttempts = 1
	}
	if e.RetryBaseDelay <= 0 {
		e.RetryBaseDelay = 500 * time.Millisecond
	}
	if e.RetryMaxDelay < e.RetryBaseDelay {
		e.RetryMaxDelay = e.RetryBaseDelay
	}
	if e.ProviderRPS < 0 {
		e.ProviderRPS = 0
	}
	if e.ProviderBurst < 1 {
		e.ProviderBurst = 1
	}
	if e.GatewayTimeout <= 0 {
		e.GatewayTimeout = 2 * time.Minute
	}
}
