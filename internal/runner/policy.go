package runner

import (
	"context"
	"fmt"

	"folio/internal/logging"
	"folio/internal/provider"
	"folio/internal/ratelimit"
	"folio/internal/stream"
)

// emitFunc delivers one event into the run's stream. The runner supplies a
// closure that stamps the run identifier and sequence number.
type emitFunc func(typ stream.EventType, payload any)

// policy wraps every model call of one run with retry, backoff and a one-time
// fallback switch. It is created per run and discarded with it; the switched
// flag is the run-scoped record that fallback already happened.
//
// Retry only covers failures before the first token reaches the wire. Once
// output has started streaming, replaying the call would duplicate text the
// consumer already rendered, so a mid-stream failure is run-fatal.
type policy struct {
	primary  provider.Client
	fallback provider.Client
	retry    provider.RetryConfig
	limiter  *ratelimit.Limiter

	switched bool
}

func newPolicy(primary, fallback provider.Client, retry provider.RetryConfig, limiter *ratelimit.Limiter) *policy {
	return &policy{
		primary:  primary,
		fallback: fallback,
		retry:    retry,
		limiter:  limiter,
	}
}

func (p *policy) active() provider.Client {
	if p.switched {
		return p.fallback
	}
	return p.primary
}

// Call issues the model call, retrying transient setup failures with
// exponential backoff and switching to the fallback model at most once.
// Every retry is announced with a retry_scheduled info event, every switch
// with a model_switch info event. onText receives text deltas as they stream.
func (p *policy) Call(ctx context.Context, req provider.Request, emit emitFunc, onText func(delta string)) (*provider.Response, error) {
	attempt := 0
	for {
		attempt++

		streamed := false
		resp, err := p.attempt(ctx, req, func(delta string) {
			streamed = true
			onText(delta)
		})
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if streamed {
			return nil, fmt.Errorf("model stream failed after output began: %w", err)
		}
		if !provider.IsRetryableError(err) {
			return nil, err
		}

		degraded := provider.IsDegradedError(err)
		exhausted := attempt >= p.retry.MaxAttempts

		if degraded || exhausted {
			if p.fallback != nil && !p.switched {
				from := p.active().Model()
				p.switched = true
				to := p.active().Model()
				logging.Warn("switching to fallback model",
					"from", from,
					"to", to,
					"attempt", attempt,
					"degraded", degraded,
					"error", err)
				emit(stream.EventInfo, stream.InfoPayload{
					InfoType: stream.InfoModelSwitch,
					From:     from,
					To:       to,
					Attempt:  attempt,
				})
				attempt = 0
				continue
			}
			return nil, fmt.Errorf("model call failed after %d attempts: %w", attempt, err)
		}

		delay := provider.CalculateBackoff(p.retry.RetryDelay, attempt-1, p.retry.MaxDelay)
		logging.Warn("retrying model call",
			"attempt", attempt,
			"max_attempts", p.retry.MaxAttempts,
			"delay", delay,
			"error", err)
		emit(stream.EventInfo, stream.InfoPayload{
			InfoType:    stream.InfoRetryScheduled,
			Attempt:     attempt,
			MaxAttempts: p.retry.MaxAttempts,
			RetryInMs:   delay.Milliseconds(),
		})
		if err := provider.Sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// attempt performs a single rate-limited model call and drains the stream.
func (p *policy) attempt(ctx context.Context, req provider.Request, onText func(delta string)) (*provider.Response, error) {
	estimated := estimateTokens(req)
	if err := p.limiter.AcquireWithContext(ctx, estimated); err != nil {
		return nil, err
	}

	client := p.active()
	s, err := client.Stream(ctx, req)
	if err != nil {
		p.limiter.ReturnTokens(1, estimated)
		return nil, err
	}

	resp, err := provider.Collect(ctx, s, onText)
	if err != nil {
		p.limiter.ReturnTokens(0, estimated)
		return nil, err
	}
	return resp, nil
}

// estimateTokens sizes a request for the rate limiter. Roughly four
// characters per token is close enough for admission control.
func estimateTokens(req provider.Request) int64 {
	chars := len(req.System)
	for _, m := range req.Messages {
		chars += len(m.Content)
		for _, tr := range m.ToolResults {
			chars += len(tr.Content)
		}
	}
	return int64(chars/4) + 1
}
