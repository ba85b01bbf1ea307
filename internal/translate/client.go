package translate

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/voxguide/internal/catalog"
	"github.com/snarg/voxguide/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// Client fans a text out to several target languages through a Provider.
type Client struct {
	provider Provider
	source   string
	log      zerolog.Logger
}

// NewClient creates a client translating from the source language code.
func NewClient(p Provider, source string, log zerolog.Logger) *Client {
	return &Client{provider: p, source: source, log: log}
}

// Source returns the source language code.
func (c *Client) Source() string { return c.source }

// Translate requests every target concurrently. Results are returned in the
// order of targets. If any request fails the whole batch fails with a
// *LanguageError for the first failure and no results are returned.
func (c *Client) Translate(ctx context.Context, text string, targets []string) ([]Result, error) {
	results := make([]Result, len(targets))
	if len(targets) == 0 {
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, code := range targets {
		g.Go(func() error {
			out, err := c.TranslateFrom(gctx, text, c.source, code)
			if err != nil {
				return &LanguageError{Code: code, Name: catalog.LanguageName(code), Err: err}
			}
			results[i] = Result{
				LanguageCode: code,
				LanguageName: catalog.LanguageName(code),
				Text:         out,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// TranslateFrom performs one request between an arbitrary language pair.
func (c *Client) TranslateFrom(ctx context.Context, text, source, target string) (string, error) {
	start := time.Now()
	out, err := c.provider.Translate(ctx, text, source, target)
	metrics.TranslationDuration.WithLabelValues(target).Observe(time.Since(start).Seconds())

	status := "ok"
	if err != nil {
		status = "error"
		if ctx.Err() != nil {
			status = "canceled"
		}
		c.log.Debug().Err(err).Str("source", source).Str("target", target).Msg("translation request failed")
	}
	metrics.TranslationRequestsTotal.WithLabelValues(target, status).Inc()
	return out, err
}
