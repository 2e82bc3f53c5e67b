package processing

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/ivfcopilot/copilot/errors"
	"github.com/ivfcopilot/copilot/server/metrics"
	"github.com/ivfcopilot/copilot/server/provider"
	"go.uber.org/zap"
)

// Upstream performs the completion call. *provider.Client implements it.
type Upstream interface {
	Complete(ctx context.Context, input []provider.Message) (*provider.Response, error)
}

// Processor runs the pipeline for one validated request:
// prompt construction, a single upstream call and answer extraction.
// It holds no per-request state and is safe for concurrent use.
type Processor struct {
	upstream Upstream
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewProcessor creates a processor. The metrics argument may be nil.
func NewProcessor(upstream Upstream, m *metrics.Metrics, logger *zap.Logger) (*Processor, error) {
	if upstream == nil {
		return nil, fmt.Errorf("upstream client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		upstream: upstream,
		metrics:  m,
		logger:   logger,
	}, nil
}

// Answer turns req into an answer. Non-success upstream responses come back
// as upstream errors carrying the upstream status and body; an open circuit
// becomes an unavailable error; anything else is returned as is.
func (p *Processor) Answer(ctx context.Context, requestID string, req *AnswerRequest) (*Answer, error) {
	messages, err := BuildMessages(req)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	resp, err := p.upstream.Complete(ctx, convertMessages(messages))
	if err != nil {
		if stderrors.Is(err, provider.ErrCircuitOpen) {
			return nil, errors.NewUnavailableError(requestID, err)
		}
		return nil, err
	}

	if !resp.OK() {
		return nil, errors.NewUpstreamError(requestID, resp.StatusCode, resp.Body)
	}

	answer, fallback := ExtractAnswer(resp.Body)
	if fallback {
		p.logger.Warn("No text in upstream response, using fallback answer",
			zap.String("request_id", requestID),
			zap.Int("body_size", len(resp.Body)),
		)
		if p.metrics != nil {
			p.metrics.FallbackAnswers.Inc()
		}
	}

	return &Answer{Answer: answer}, nil
}

func convertMessages(messages []Message) []provider.Message {
	result := make([]provider.Message, len(messages))
	for i, msg := range messages {
		result[i] = provider.Message{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}
	return result
}
