package telemetry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"

	"github.com/cloo-solutions/docqa/internal/domain"
)

func TestSpanStatus(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  sentry.SpanStatus
		wantCapture bool
	}{
		{"validation", domain.ErrNoSearchableText, sentry.SpanStatusInvalidArgument, false},
		{"wrapped validation", domain.Wrap(domain.ErrModelMismatch, errors.New("model b")), sentry.SpanStatusInvalidArgument, false},
		{"not found", domain.ErrIndexNotFound, sentry.SpanStatusNotFound, false},
		{"unauthorized", domain.ErrInvalidAPIKey, sentry.SpanStatusUnauthenticated, false},
		{"upstream", domain.ErrEmbedding, sentry.SpanStatusUnavailable, true},
		{"internal", domain.ErrIndexCorrupt, sentry.SpanStatusInternalError, true},
		{"plain error", fmt.Errorf("disk full"), sentry.SpanStatusInternalError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, capture := spanStatus(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCapture, capture)
		})
	}
}

func TestSpan_SetError(t *testing.T) {
	_, span := StartSpan(context.Background(), "test.op", SpanAttributes{UserID: "alice", Document: "a.pdf", Operation: "split"})
	defer span.End()

	span.SetError(nil)
	assert.Equal(t, sentry.SpanStatusUndefined, span.inner.Status)

	span.SetError(domain.ErrNoSearchableText)
	assert.Equal(t, sentry.SpanStatusInvalidArgument, span.inner.Status)
	assert.Equal(t, "alice", span.inner.Tags["user_id"])
	assert.Equal(t, "a.pdf", span.inner.Tags["document"])
}

func TestSpan_ZeroValueIsSafe(t *testing.T) {
	var span Span

	assert.NotPanics(t, func() {
		span.SetStatus(sentry.SpanStatusOK)
		span.SetError(errors.New("boom"))
		span.End()
	})
	assert.NotNil(t, span.Context())
}
