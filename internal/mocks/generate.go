// Package mocks provides mock implementations for testing the rowmill enrichment engine.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the
// ports defined in internal/core. Mocks are generated with go:generate directives.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	client := mocks.NewMockClient(ctrl)
//	client.EXPECT().Invoke(gomock.Any(), gomock.Any()).Return(resp, nil)
package mocks

// Mock for the JobRepository port: every job store operation the engine performs,
// including the guarded status transitions and row-pointer updates.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=job_repository_mock.go github.com/rowmill/rowmill/internal/core JobRepository

// Mock for the JobLogRepository port (Append, ListByJob).
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=job_log_repository_mock.go github.com/rowmill/rowmill/internal/core JobLogRepository

// Mock for the BlobStore port used for input, partial, output and log artifacts.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=blob_store_mock.go github.com/rowmill/rowmill/internal/core BlobStore

// Mock for the CacheRepository port backing options caching and progress snapshots.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=cache_repository_mock.go github.com/rowmill/rowmill/internal/core CacheRepository

// Mock for the Client port: the wire-level LLM invocation boundary.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=client_mock.go github.com/rowmill/rowmill/internal/core Client
