package qrcache

import (
	"context"
	"log"
	"strings"
	"time"
)

// WarmConfig bounds a warming pass so it cannot become a render storm.
type WarmConfig struct {
	BatchSize int
	Pacing    time.Duration
}

// WarmStatic pre-renders the given stall credentials in bounded batches with
// a pacing delay between batches. Returns the number of credentials warmed;
// individual failures are logged and skipped.
func (c *Cache) WarmStatic(ctx context.Context, tokens []string, wc WarmConfig) int {
	return c.warm(ctx, tokens, wc, staticLabel, func(ctx context.Context, tok string) error {
		_, err := c.RenderStatic(ctx, tok)
		return err
	})
}

// WarmRotating pre-renders a current-window token for each subject. The mint
// function issues a fresh credential; the cache key is window-scoped so the
// warmed entry serves exactly the tokens clients hold right now.
func (c *Cache) WarmRotating(ctx context.Context, subjects []string, mint func(subject string) (string, error), wc WarmConfig) int {
	label := func(subject string) string { return "subject " + subject }
	return c.warm(ctx, subjects, wc, label, func(ctx context.Context, subject string) error {
		tok, err := mint(subject)
		if err != nil {
			return err
		}
		_, err = c.RenderRotating(ctx, subject, tok)
		return err
	})
}

func (c *Cache) warm(ctx context.Context, items []string, wc WarmConfig, label func(string) string, one func(context.Context, string) error) int {
	if wc.BatchSize <= 0 {
		wc.BatchSize = 50
	}
	warmed := 0
	for start := 0; start < len(items); start += wc.BatchSize {
		end := start + wc.BatchSize
		if end > len(items) {
			end = len(items)
		}
		for _, item := range items[start:end] {
			if ctx.Err() != nil {
				return warmed
			}
			if err := one(ctx, item); err != nil {
				log.Printf("warm skipped %s: %v", label(item), err)
				continue
			}
			warmed++
		}
		if end < len(items) && wc.Pacing > 0 {
			select {
			case <-time.After(wc.Pacing):
			case <-ctx.Done():
				return warmed
			}
		}
	}
	return warmed
}

// staticLabel names a stall credential in logs without reproducing the
// token itself.
func staticLabel(tok string) string {
	if parts := strings.Split(tok, "_"); len(parts) >= 2 {
		return "stall " + parts[1]
	}
	return "stall credential"
}
