// Package pipeline orchestrates one verification analysis: decompose the
// input into atomic claims, gather evidence per claim, generate verdicts,
// then run the deterministic post-processing chain that calibrates
// confidence against evidence quality.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/factharbor/verify-cli/internal/config"
	"github.com/factharbor/verify-cli/internal/fetcher"
	"github.com/factharbor/verify-cli/internal/health"
	"github.com/factharbor/verify-cli/internal/llm"
	"github.com/factharbor/verify-cli/internal/model"
	"github.com/factharbor/verify-cli/internal/store"
	"github.com/factharbor/verify-cli/pkg/anthropic"
	"github.com/factharbor/verify-cli/pkg/perplexity"
)

// sourceCacheTTL bounds how long fetched search sources are reused.
const sourceCacheTTL = 24 * time.Hour

// Pipeline runs the full claim verification flow.
type Pipeline struct {
	cfg        *config.Config
	store      store.Store
	anthropic  anthropic.Client
	perplexity perplexity.Client
	health     *health.Tracker
	fetcher    *fetcher.Fetcher
	limiter    *rate.Limiter
	nowFunc    func() time.Time
}

// New creates a Pipeline with all dependencies.
func New(cfg *config.Config, st store.Store, aiClient anthropic.Client, searchClient perplexity.Client, tracker *health.Tracker) *Pipeline {
	perSec := cfg.Pipeline.SearchRatePerSec
	if perSec <= 0 {
		perSec = 2
	}
	return &Pipeline{
		cfg:        cfg,
		store:      st,
		anthropic:  aiClient,
		perplexity: searchClient,
		health:     tracker,
		fetcher:    fetcher.New(fetcher.Options{}),
		limiter:    rate.NewLimiter(rate.Limit(perSec), 1),
		nowFunc:    time.Now,
	}
}

// Run verifies inputText and returns the calibrated analysis. The run is
// persisted to the local store as it progresses.
func (p *Pipeline) Run(ctx context.Context, inputText string, variant model.PipelineVariant) (*model.AnalysisResult, error) {
	log := zap.L().With(zap.String("variant", string(variant)))
	log.Info("pipeline: starting analysis", zap.Int("input_len", len(inputText)))

	run, err := p.store.CreateRun(ctx, inputText, variant)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	if err := p.store.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning); err != nil {
		log.Warn("pipeline: update run status failed", zap.Error(err))
	}

	result, err := p.analyze(ctx, run.ID, inputText, variant)
	if err != nil {
		if failErr := p.store.FailRun(ctx, run.ID, err.Error()); failErr != nil {
			log.Warn("pipeline: fail run write failed", zap.Error(failErr))
		}
		return nil, err
	}

	if err := p.store.UpdateRunResult(ctx, run.ID, result); err != nil {
		log.Warn("pipeline: result write failed", zap.Error(err))
	}

	log.Info("pipeline: analysis complete",
		zap.String("run_id", run.ID),
		zap.Int("claims", len(result.Verdicts)),
		zap.Int("evidence", len(result.Evidence)),
	)
	return result, nil
}

func (p *Pipeline) analyze(ctx context.Context, runID, inputText string, variant model.PipelineVariant) (*model.AnalysisResult, error) {
	result := &model.AnalysisResult{
		RunID:        runID,
		InputText:    inputText,
		Calibrations: map[string]model.CalibrationResult{},
	}

	claims, err := p.decompose(ctx, inputText)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: decompose claims")
	}
	if len(claims) == 0 {
		return nil, eris.New("pipeline: no verifiable claims found in input")
	}

	gathered, err := p.gatherEvidence(ctx, claims)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: gather evidence")
	}
	result.Evidence = gathered.Items
	result.Sources = gathered.Sources
	result.Warnings = append(result.Warnings, gathered.Warnings...)

	judged, err := p.generateVerdicts(ctx, claims, gathered, variant)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: generate verdicts")
	}
	result.Verdicts = judged.Verdicts
	result.ContextAnswers = judged.ContextAnswers

	p.postProcess(ctx, result, judged.Granularity)
	return result, nil
}

// generator adapts the Anthropic client to the schema-retry combinator.
type generator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	system    []anthropic.SystemBlock
	phase     string
}

func (g *generator) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	req := anthropic.MessageRequest{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		System:    g.system,
		Messages:  make([]anthropic.Message, len(messages)),
	}
	for i, m := range messages {
		req.Messages[i] = anthropic.Message{Role: m.Role, Content: m.Content}
	}

	resp, err := g.client.CreateMessage(ctx, req)
	if err != nil {
		return "", err
	}
	resp.Usage.LogCost(g.model, g.phase)
	return resp.Text(), nil
}

func (p *Pipeline) newGenerator(phase, modelID, system string) *generator {
	maxTokens := p.cfg.Anthropic.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	g := &generator{
		client:    p.anthropic,
		model:     modelID,
		maxTokens: maxTokens,
		phase:     phase,
	}
	if system != "" {
		g.system = anthropic.BuildCachedSystemBlocks(system)
	}
	return g
}

func newID(prefix string) string {
	return prefix + "-" + uuid.New().String()[:8]
}
