package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rowmill/rowmill/internal/domain/model"
)

// JobOptionsService reads and writes the per-job options document. The document
// lives in the blob store at a well-known key and is editable by the API layer
// while a job is paused, so the engine re-reads it at every between-rows control
// check; a redis-backed cache with a short TTL keeps those re-reads cheap.
type JobOptionsService struct {
	blobs BlobStore
	cache CacheRepository
	ttl   time.Duration
}

// JobOptionsConfig holds configuration for options caching.
type JobOptionsConfig struct {
	TTL time.Duration `json:"ttl"`
}

// DefaultJobOptionsConfig returns a JobOptionsConfig with sensible defaults.
func DefaultJobOptionsConfig() JobOptionsConfig {
	return JobOptionsConfig{TTL: 15 * time.Second}
}

// JobOptionsServiceOptions bundles dependencies for NewJobOptionsService.
type JobOptionsServiceOptions struct {
	Blobs  BlobStore
	Cache  CacheRepository
	Config JobOptionsConfig
}

// NewJobOptionsService creates a new JobOptionsService. Cache is optional;
// without it every read goes to the blob store.
func NewJobOptionsService(opts JobOptionsServiceOptions) *JobOptionsService {
	ttl := opts.Config.TTL
	if ttl <= 0 {
		ttl = DefaultJobOptionsConfig().TTL
	}
	return &JobOptionsService{
		blobs: opts.Blobs,
		cache: opts.Cache,
		ttl:   ttl,
	}
}

// OptionsKey is the well-known blob key of a job's options document.
func OptionsKey(tenantID, jobID string) string {
	return "tenants/" + tenantID + "/jobs/" + jobID + "/options.json"
}

func optionsCacheKey(jobID string) string {
	return "job:options:" + jobID
}

// Get returns the job's options, falling back to defaults when no document
// exists yet.
func (s *JobOptionsService) Get(ctx context.Context, tenantID, jobID string) (model.JobOptions, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, optionsCacheKey(jobID)); err == nil && len(cached) > 0 {
			var doc model.JobOptions
			if jsonErr := json.Unmarshal(cached, &doc); jsonErr == nil {
				return doc, nil
			}
		}
	}

	doc, err := s.load(ctx, tenantID, jobID)
	if err != nil {
		return model.JobOptions{}, err
	}

	if s.cache != nil {
		if raw, marshalErr := json.Marshal(doc); marshalErr == nil {
			// Cache failures only cost a future blob read.
			_ = s.cache.Set(ctx, optionsCacheKey(jobID), raw, s.ttl)
		}
	}
	return doc, nil
}

// Put stores the options document and invalidates the cache so the next
// control check observes the change immediately.
func (s *JobOptionsService) Put(ctx context.Context, tenantID, jobID string, doc model.JobOptions) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}
	if err := s.blobs.Put(ctx, OptionsKey(tenantID, jobID), bytes.NewReader(raw), "application/json"); err != nil {
		return fmt.Errorf("put options doc: %w", err)
	}
	if s.cache != nil {
		_, _ = s.cache.Delete(ctx, optionsCacheKey(jobID))
	}
	return nil
}

// Invalidate drops the cached copy of a job's options.
func (s *JobOptionsService) Invalidate(ctx context.Context, jobID string) {
	if s.cache != nil {
		_, _ = s.cache.Delete(ctx, optionsCacheKey(jobID))
	}
}

func (s *JobOptionsService) load(ctx context.Context, tenantID, jobID string) (model.JobOptions, error) {
	key := OptionsKey(tenantID, jobID)
	exists, err := s.blobs.Exists(ctx, key)
	if err != nil {
		return model.JobOptions{}, fmt.Errorf("check options doc: %w", err)
	}
	if !exists {
		return model.JobOptions{}, nil
	}

	body, err := s.blobs.Get(ctx, key)
	if err != nil {
		return model.JobOptions{}, fmt.Errorf("get options doc: %w", err)
	}
	defer func() {
		_ = body.Close()
	}()

	raw, err := io.ReadAll(body)
	if err != nil {
		return model.JobOptions{}, fmt.Errorf("read options doc: %w", err)
	}

	var doc model.JobOptions
	if err := json.Unmarshal(raw, &doc); err != nil {
		return model.JobOptions{}, fmt.Errorf("decode options doc: %w", err)
	}
	return doc, nil
}
