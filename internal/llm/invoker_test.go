package llm_test

import (
	"context"
	"testing"
	"time"

	domainllm "github.com/rowmill/rowmill/internal/domain/llm"
	adapter "github.com/rowmill/rowmill/internal/llm"
	"github.com/rowmill/rowmill/internal/mocks"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func fastRetryConfig() adapter.RetryConfig {
	return adapter.RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	}
}

func testRequest() domainllm.Request {
	return domainllm.Request{
		Provider: "openai",
		Model:    "gpt-4o-mini",
		UserText: "Classify: great product",
	}
}

func TestInvokerRetriesTransientFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	wire := mocks.NewMockClient(ctrl)
	iv := adapter.NewInvoker(wire, fastRetryConfig(), nil)

	gomock.InOrder(
		wire.EXPECT().Invoke(gomock.Any(), gomock.Any()).
			Return(nil, &domainllm.CallError{StatusCode: 503, Message: "overloaded"}),
		wire.EXPECT().Invoke(gomock.Any(), gomock.Any()).
			Return(nil, &domainllm.CallError{StatusCode: 429, Message: "rate limit"}),
		wire.EXPECT().Invoke(gomock.Any(), gomock.Any()).
			Return(&domainllm.Response{Content: "positive"}, nil),
	)

	resp, err := iv.Invoke(context.Background(), testRequest())
	require.NoError(t, err)
	require.Equal(t, "positive", resp.Content)
}

func TestInvokerDoesNotRetryPauseWorthyFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	wire := mocks.NewMockClient(ctrl)
	iv := adapter.NewInvoker(wire, fastRetryConfig(), nil)

	authErr := &domainllm.CallError{StatusCode: 401, Message: "unauthorized"}
	wire.EXPECT().Invoke(gomock.Any(), gomock.Any()).Return(nil, authErr).Times(1)

	_, err := iv.Invoke(context.Background(), testRequest())
	require.Error(t, err)

	// The original provider error reaches the caller's classifier intact.
	var call *domainllm.CallError
	require.ErrorAs(t, err, &call)
	require.Equal(t, 401, call.StatusCode)
}

func TestInvokerDoesNotRetryCellLevelFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	wire := mocks.NewMockClient(ctrl)
	iv := adapter.NewInvoker(wire, fastRetryConfig(), nil)

	wire.EXPECT().Invoke(gomock.Any(), gomock.Any()).
		Return(nil, &domainllm.CallError{StatusCode: 400, Message: "invalid request shape"}).
		Times(1)

	_, err := iv.Invoke(context.Background(), testRequest())
	require.Error(t, err)
}

func TestInvokerStopsAtAttemptBudget(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	wire := mocks.NewMockClient(ctrl)
	iv := adapter.NewInvoker(wire, fastRetryConfig(), nil)

	wire.EXPECT().Invoke(gomock.Any(), gomock.Any()).
		Return(nil, &domainllm.CallError{StatusCode: 503, Message: "still overloaded"}).
		Times(3)

	_, err := iv.Invoke(context.Background(), testRequest())
	require.Error(t, err)
}

func TestInvokerNormalizesRawPayload(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	wire := mocks.NewMockClient(ctrl)
	iv := adapter.NewInvoker(wire, fastRetryConfig(), nil)

	wire.EXPECT().Invoke(gomock.Any(), gomock.Any()).
		Return(&domainllm.Response{Raw: []byte(`{"choices":[{"message":{"content":"from raw"}}]}`)}, nil)

	resp, err := iv.Invoke(context.Background(), testRequest())
	require.NoError(t, err)
	require.Equal(t, "from raw", resp.Content)
}

func TestInvokerHonorsContextDuringBackoff(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	wire := mocks.NewMockClient(ctrl)
	iv := adapter.NewInvoker(wire, adapter.RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Minute,
		MaxDelay:    time.Minute,
	}, nil)

	wire.EXPECT().Invoke(gomock.Any(), gomock.Any()).
		Return(nil, &domainllm.CallError{StatusCode: 503, Message: "overloaded"}).
		Times(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := iv.Invoke(ctx, testRequest())
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("invoke did not abort during backoff")
	}
}

func TestInvokerRateLimiterSpacesCalls(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	wire := mocks.NewMockClient(ctrl)
	iv := adapter.NewInvoker(wire, adapter.RetryConfig{
		MaxAttempts: 1,
		ProviderRPS: 50,
	}, nil)

	wire.EXPECT().Invoke(gomock.Any(), gomock.Any()).
		Return(&domainllm.Response{Content: "ok"}, nil).
		Times(3)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := iv.Invoke(context.Background(), testRequest())
		require.NoError(t, err)
	}
	// Burst 1 at 50 rps forces roughly 20ms between the second and third call.
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}
