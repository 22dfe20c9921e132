// Package summarize turns free-form technician notes into a CallSummary.
package summarize

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hpungsan/sav-assist/internal/calllog"
	"github.com/hpungsan/sav-assist/internal/errors"
	"github.com/hpungsan/sav-assist/internal/logger"
)

// Options configures a Client.
type Options struct {
	FastModel      string
	DeepModel      string
	ThinkingBudget int

	// Retries is the number of extra attempts after a transient failure.
	Retries int

	Logger *logger.Logger
}

// Client runs the fast and deep summarization modes.
type Client struct {
	gen  Generator
	opts Options
	log  *logger.Logger

	// retryInterval overrides the backoff's initial interval when set.
	retryInterval time.Duration
}

func New(gen Generator, opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	return &Client{gen: gen, opts: opts, log: opts.Logger.Component("summarize")}
}

// Summarize produces a standard report with the fast model.
func (c *Client) Summarize(ctx context.Context, notes string, eq calllog.Equipment) (calllog.CallSummary, error) {
	return c.run(ctx, "fast", notes, Request{
		Model:  c.opts.FastModel,
		Prompt: fastPrompt(notes, eq),
		Schema: fastSchema,
	})
}

// DeepAnalyze produces a root-cause diagnostic with the heavy model.
func (c *Client) DeepAnalyze(ctx context.Context, notes string, eq calllog.Equipment) (calllog.CallSummary, error) {
	return c.run(ctx, "deep", notes, Request{
		Model:          c.opts.DeepModel,
		Prompt:         deepPrompt(notes, eq),
		Schema:         deepSchema,
		ThinkingBudget: c.opts.ThinkingBudget,
	})
}

func (c *Client) run(ctx context.Context, mode, notes string, req Request) (calllog.CallSummary, error) {
	if strings.TrimSpace(notes) == "" {
		return calllog.CallSummary{}, errors.NewInvalidRequest("notes are required")
	}

	log := c.log.WithField("mode", mode).WithField("model", req.Model)
	start := time.Now()

	var text string
	var lastErr error
	op := func() error {
		out, err := c.gen.Generate(ctx, req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil || isPermanent(err) {
				return backoff.Permanent(err)
			}
			log.WithField("error", err.Error()).Warn("generation attempt failed")
			return err
		}
		text = out
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	if c.retryInterval > 0 {
		eb.InitialInterval = c.retryInterval
	}
	b := backoff.WithMaxRetries(eb, uint64(max(c.opts.Retries, 0)))
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		if lastErr == nil {
			lastErr = err
		}
		log.WithField("error", lastErr.Error()).Error("summarization failed")
		if ctx.Err() != nil {
			return calllog.CallSummary{}, errors.NewCancelled("summarization")
		}
		return calllog.CallSummary{}, errors.NewRemoteFailure(lastErr)
	}

	summary, err := parseSummary(text)
	if err != nil {
		log.WithField("error", err.Error()).Error("unparseable summary")
		return calllog.CallSummary{}, errors.NewRemoteFailure(err)
	}
	if strings.TrimSpace(text) == "" {
		log.Warn("empty response, using neutral summary")
	}

	log.WithField("duration_ms", time.Since(start).Milliseconds()).Info("summary generated")
	return summary, nil
}

// isPermanent reports client errors that a retry cannot fix.
func isPermanent(err error) bool {
	var se *StatusError
	if stderrors.As(err, &se) {
		return se.Code >= 400 && se.Code < 500 && se.Code != 429
	}
	return false
}

// parseSummary decodes the model output. An empty body decodes as an
// empty object; markdown fences are stripped first.
func parseSummary(text string) (calllog.CallSummary, error) {
	body := stripFences(text)
	if body == "" {
		body = "{}"
	}

	var s calllog.CallSummary
	if err := json.Unmarshal([]byte(body), &s); err != nil {
		return calllog.CallSummary{}, err
	}
	s.Sentiment = calllog.NormalizeSentiment(s.Sentiment)
	return s, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n"))
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
