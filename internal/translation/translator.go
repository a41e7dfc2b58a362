package translation

import (
	"context"
	"errors"
	"strings"

	"video-dubber/internal/apperr"
	internalhttp "video-dubber/internal/http"
	"video-dubber/internal/logger"
	"video-dubber/internal/text"
	"video-dubber/models"
)

// Options tunes a Translator.
type Options struct {
	SourceLang string
	BatchSize  int
	Retry      internalhttp.RetryConfig
}

// Translator turns sentence chunks into translated lines. Whole batches are
// retried with backoff; a batch that still fails is retried one item at a
// time, and an item that fails on its own keeps its original text. Only
// real provider translations are cached.
type Translator struct {
	provider Provider
	cache    Cache
	opts     Options
}

// NewTranslator creates a translator. A nil cache disables caching.
func NewTranslator(provider Provider, cache Cache, opts Options) *Translator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.SourceLang == "" {
		opts.SourceLang = "en"
	}
	if opts.Retry.ShouldRetry == nil {
		opts.Retry.ShouldRetry = retryable
	}
	return &Translator{provider: provider, cache: cache, opts: opts}
}

// Report summarizes one TranslateBatch call.
type Report struct {
	CacheHits    int
	Translated   int
	Untranslated int // items that kept their original text
	BatchFailed  int
}

// TranslateBatch translates every chunk into targetLang. The result has one
// line per chunk in the same order. Provider failures never fail the call;
// only a cancelled context does.
func (t *Translator) TranslateBatch(ctx context.Context, chunks []models.SentenceChunk, targetLang string) ([]models.TranslatedLine, Report, error) {
	var report Report
	lines := make([]models.TranslatedLine, len(chunks))
	if len(chunks) == 0 {
		return lines, report, nil
	}

	target := text.ProviderCode(targetLang)
	source := text.ProviderCode(t.opts.SourceLang)

	// Deduplicate uncached texts, keeping first-seen order.
	pending := make(map[string][]int)
	var unique []string
	for i, c := range chunks {
		lines[i] = models.TranslatedLine{SentenceChunk: c, TranslatedText: c.Text}
		if strings.TrimSpace(c.Text) == "" {
			continue
		}
		if v, ok := t.cacheGet(ctx, CacheKey{Text: c.Text, Lang: target}); ok {
			lines[i].TranslatedText = v
			report.CacheHits++
			continue
		}
		if _, seen := pending[c.Text]; !seen {
			unique = append(unique, c.Text)
		}
		pending[c.Text] = append(pending[c.Text], i)
	}

	logger.Info("Translating %d chunks to %s: %d cached, %d unique via %s",
		len(chunks), text.DisplayName(target), report.CacheHits, len(unique), t.provider.Name())

	for start := 0; start < len(unique); start += t.opts.BatchSize {
		end := min(start+t.opts.BatchSize, len(unique))
		batch := unique[start:end]

		results, ok := t.translateBatch(ctx, batch, source, target)
		if !ok {
			report.BatchFailed++
		}
		if err := ctx.Err(); err != nil {
			return nil, report, apperr.Wrap(apperr.ErrTranslation, "translate", "batch", "cancelled", err)
		}

		for j, original := range batch {
			translated, done := results[j], results[j] != ""
			if done {
				translated = text.Postprocess(translated, target)
				if t.provider.Name() != string(ProviderOffline) {
					t.cacheSet(ctx, CacheKey{Text: original, Lang: target}, translated)
				}
				report.Translated += len(pending[original])
			} else {
				translated = original
				report.Untranslated += len(pending[original])
			}
			for _, idx := range pending[original] {
				lines[idx].TranslatedText = translated
			}
		}
	}

	if report.Untranslated > 0 {
		logger.Warn("Translation fell back to original text for %d of %d chunks", report.Untranslated, len(chunks))
	}
	return lines, report, nil
}

// translateBatch returns one result per text; an empty string marks an item
// that could not be translated. ok is false when the batch call failed and
// per-item fallback was used.
func (t *Translator) translateBatch(ctx context.Context, batch []string, source, target string) ([]string, bool) {
	prepared := make([]string, len(batch))
	for i, s := range batch {
		prepared[i] = text.Preprocess(s)
	}

	out, err := internalhttp.Retry(ctx, t.opts.Retry, func(ctx context.Context) ([]string, error) {
		return t.provider.Translate(ctx, prepared, source, target)
	})
	if err == nil && len(out) == len(batch) {
		return out, true
	}
	if err == nil {
		err = errors.New("provider returned a mismatched result count")
	}
	logger.Warn("Translation batch of %d failed, translating items individually: %v", len(batch), err)

	results := make([]string, len(batch))
	for i, s := range prepared {
		if ctx.Err() != nil {
			break
		}
		single, err := t.provider.Translate(ctx, []string{s}, source, target)
		if err != nil || len(single) != 1 {
			logger.Debug("Translation item %d failed: %v", i, err)
			continue
		}
		results[i] = single[0]
	}
	return results, false
}

func (t *Translator) cacheGet(ctx context.Context, key CacheKey) (string, bool) {
	if t.cache == nil {
		return "", false
	}
	return t.cache.Get(ctx, key)
}

func (t *Translator) cacheSet(ctx context.Context, key CacheKey, value string) {
	if t.cache != nil {
		t.cache.Set(ctx, key, value)
	}
}

func retryable(err error) bool {
	var te *apperr.TranslationError
	if errors.As(err, &te) {
		return te.Retryable()
	}
	return !errors.Is(err, context.Canceled)
}
