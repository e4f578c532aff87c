package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/factharbor/verify-cli/internal/health"
	"github.com/factharbor/verify-cli/internal/llm"
	"github.com/factharbor/verify-cli/internal/model"
	"github.com/factharbor/verify-cli/internal/resilience"
	"github.com/factharbor/verify-cli/pkg/perplexity"
)

const extractSystem = `You extract atomic evidence items from search results.
Each item cites exactly one source by its id and classifies the evidence.
Return JSON only.`

const extractPromptFmt = `Claim under verification:
%s

Search answer:
%s

Sources (cite by id):
%s

Extract evidence items bearing on the claim. Return JSON of the form:
{"items": [{"statement": "...", "sourceId": "...", "sourceUrl": "...",
"sourceExcerpt": "...", "category": "statistic|expert_quote|event|legal_provision|direct_evidence|general",
"claimDirection": "supports|contradicts|neutral",
"probativeValue": "high|medium|low",
"sourceAuthority": "primary|secondary|opinion|contested",
"evidenceBasis": "scientific|documented|anecdotal|theoretical|pseudoscientific"}]}`

type extractPayload struct {
	Items []map[string]any `json:"items" validate:"required"`
}

// gatherResult accumulates evidence and sources across all claims.
type gatherResult struct {
	Items    []model.EvidenceItem
	Sources  []model.FetchedSource
	Warnings []string

	// ClaimEvidence maps claim ID to the IDs of its extracted items.
	ClaimEvidence map[string][]string
}

// gatherEvidence fans out one search per claim, bounded by the pipeline's
// search concurrency and rate limit. A claim whose search fails transiently
// degrades to an empty evidence set rather than failing the run; fatal
// provider errors trip the circuit and abort.
func (p *Pipeline) gatherEvidence(ctx context.Context, claims []claim) (*gatherResult, error) {
	result := &gatherResult{ClaimEvidence: map[string][]string{}}
	var mu sync.Mutex

	concurrency := p.cfg.Pipeline.SearchConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, c := range claims {
		g.Go(func() error {
			items, sources, warning, err := p.gatherForClaim(gctx, c)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			result.Items = append(result.Items, items...)
			result.Sources = append(result.Sources, sources...)
			if warning != "" {
				result.Warnings = append(result.Warnings, warning)
			}
			ids := make([]string, len(items))
			for i, item := range items {
				ids[i] = item.ID
			}
			result.ClaimEvidence[c.ID] = ids
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

func (p *Pipeline) gatherForClaim(ctx context.Context, c claim) (items []model.EvidenceItem, sources []model.FetchedSource, warning string, err error) {
	if allowErr := p.health.Allow(health.ProviderSearch); allowErr != nil {
		zap.L().Warn("pipeline: search circuit open, degrading to empty evidence",
			zap.String("claim_id", c.ID))
		return nil, nil, fmt.Sprintf("claim %s: search unavailable, no evidence gathered", c.ID), nil
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, nil, "", err
	}

	retryCfg := resilience.RetryConfig{
		OnRetry: resilience.RetryLogger(health.ProviderSearch, "search"),
	}
	resp, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*perplexity.SearchResponse, error) {
		return p.perplexity.Search(ctx, "Verify this claim with citations: "+c.Text)
	})
	if err != nil {
		if resilience.IsFatal(err) {
			p.health.RecordFailure(health.ProviderSearch, err.Error())
			return nil, nil, "", err
		}
		zap.L().Warn("pipeline: search failed, degrading to empty evidence",
			zap.String("claim_id", c.ID), zap.Error(err))
		return nil, nil, fmt.Sprintf("claim %s: search failed, no evidence gathered", c.ID), nil
	}
	p.health.RecordSuccess(health.ProviderSearch)

	sources = p.resolveSources(ctx, resp.Sources)
	if len(sources) == 0 {
		return nil, nil, fmt.Sprintf("claim %s: search returned no sources", c.ID), nil
	}

	items, extractWarning := p.extractEvidence(ctx, c, resp.Answer, sources)
	return items, sources, extractWarning, nil
}

// resolveSources turns search citations into FetchedSource records,
// consulting and populating the local cache per URL.
func (p *Pipeline) resolveSources(ctx context.Context, results []perplexity.SearchResult) []model.FetchedSource {
	var out []model.FetchedSource
	for _, r := range results {
		if r.URL == "" {
			continue
		}

		if cached, err := p.store.GetCachedSource(ctx, r.URL); err == nil && cached != nil {
			out = append(out, *cached)
			continue
		}

		src := model.FetchedSource{
			ID:           newID("s"),
			URL:          r.URL,
			Title:        r.Title,
			FetchedAt:    p.nowFunc().UTC(),
			Category:     model.SourceGroundedSearch,
			FetchSuccess: true,
		}
		if r.Date != "" {
			if t, err := time.Parse("2006-01-02", r.Date); err == nil {
				src.FetchedAt = t
			}
		}

		if p.cfg.Pipeline.FetchSources {
			doc, err := p.fetcher.Fetch(ctx, r.URL)
			if err != nil {
				src.FetchSuccess = false
				zap.L().Debug("pipeline: source fetch failed",
					zap.String("url", r.URL), zap.Error(err))
			} else {
				src.FullText = doc.Text
			}
		}
		out = append(out, src)

		if err := p.store.SetCachedSource(ctx, src, sourceCacheTTL); err != nil {
			zap.L().Debug("pipeline: source cache write failed", zap.Error(err))
		}
	}
	return out
}

// extractEvidence asks the LLM for structured evidence items, then pushes
// each raw item through the normalization boundary so malformed enum values
// degrade to defaults instead of failing the claim.
func (p *Pipeline) extractEvidence(ctx context.Context, c claim, answer string, sources []model.FetchedSource) ([]model.EvidenceItem, string) {
	var sourceList string
	for _, s := range sources {
		sourceList += fmt.Sprintf("- id=%s url=%s title=%q\n", s.ID, s.URL, s.Title)
	}

	gen := p.newGenerator("extract", p.cfg.Anthropic.HaikuModel, extractSystem)
	payload, err := llm.GenerateValidated[extractPayload](ctx, gen, []llm.Message{
		{Role: "user", Content: fmt.Sprintf(extractPromptFmt, c.Text, answer, sourceList)},
	}, p.cfg.Pipeline.MaxSchemaRetries)
	if err != nil {
		var sce *llm.SchemaComplianceError
		if errors.As(err, &sce) {
			zap.L().Warn("pipeline: evidence extraction never validated",
				zap.String("claim_id", c.ID), zap.Int("attempts", sce.Attempts))
		}
		return nil, fmt.Sprintf("claim %s: evidence extraction failed", c.ID)
	}

	norm := &model.Normalizer{}
	items := make([]model.EvidenceItem, 0, len(payload.Items))
	for _, raw := range payload.Items {
		items = append(items, norm.EvidenceItem(raw, newID("e")))
	}
	for _, note := range norm.Fallbacks {
		zap.L().Debug("pipeline: evidence field fell back to default",
			zap.String("field", note.Field), zap.String("applied", note.Applied))
	}
	return items, ""
}
