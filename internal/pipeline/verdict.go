package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/factharbor/verify-cli/internal/llm"
	"github.com/factharbor/verify-cli/internal/model"
)

const verdictSystem = `You judge factual claims against gathered evidence.
For each claim produce a truth percentage (0-100), a confidence (0-100),
concise reasoning, and the IDs of the evidence items you relied on.
Also answer the standard context questions about the input as a whole.
Classify how fast the overall topic's facts churn: week, month, year, or none.
Return JSON only.`

const verdictPromptFmt = `Claims:
%s

Evidence (cite by id):
%s

Return JSON of the form:
{"verdicts": [{"claimId": "...", "truthPercentage": 0, "confidence": 0,
"reasoning": "...", "supportingEvidenceIds": ["..."]}],
"contextAnswers": [{"question": "...", "answer": "...", "confidence": 0}],
"topicGranularity": "week|month|year|none"}
Every claim must receive exactly one verdict. Cite only evidence ids that
exist. Answer these context questions: who is making the claim, what is the
underlying event, and when did it occur.`

type verdictEntry struct {
	ClaimID               string   `json:"claimId" validate:"required"`
	TruthPercentage       float64  `json:"truthPercentage" validate:"min=0,max=100"`
	Confidence            float64  `json:"confidence" validate:"min=0,max=100"`
	Reasoning             string   `json:"reasoning" validate:"required,min=10"`
	SupportingEvidenceIDs []string `json:"supportingEvidenceIds"`
}

type contextEntry struct {
	Question   string  `json:"question" validate:"required"`
	Answer     string  `json:"answer" validate:"required"`
	Confidence float64 `json:"confidence" validate:"min=0,max=100"`
}

type verdictPayload struct {
	Verdicts         []verdictEntry `json:"verdicts" validate:"required,min=1,dive"`
	ContextAnswers   []contextEntry `json:"contextAnswers" validate:"dive"`
	TopicGranularity string         `json:"topicGranularity"`
}

// verdictOutput bundles everything the judging call produces.
type verdictOutput struct {
	Verdicts       []model.ClaimVerdict
	ContextAnswers []model.ContextAnswer
	Granularity    string
}

// generateVerdicts judges every claim in one batched call. The deep variant
// uses the larger model; both go through schema-validated retry. A verdict
// citing an unknown claim ID is dropped, and claims the model skipped get a
// neutral placeholder so downstream stages always see one verdict per claim.
func (p *Pipeline) generateVerdicts(ctx context.Context, claims []claim, gathered *gatherResult, variant model.PipelineVariant) (*verdictOutput, error) {
	modelID := p.cfg.Anthropic.HaikuModel
	if variant == model.VariantDeep {
		modelID = p.cfg.Anthropic.SonnetModel
	}

	var claimList strings.Builder
	byClaimID := make(map[string]claim, len(claims))
	for _, c := range claims {
		byClaimID[c.ID] = c
		fmt.Fprintf(&claimList, "- id=%s: %s\n", c.ID, c.Text)
	}

	var evidenceList strings.Builder
	knownEvidence := make(map[string]bool, len(gathered.Items))
	for _, item := range gathered.Items {
		knownEvidence[item.ID] = true
		fmt.Fprintf(&evidenceList, "- id=%s [%s/%s/%s] %s (excerpt: %s)\n",
			item.ID, item.Direction, item.Probative, item.Authority,
			item.Statement, item.SourceExcerpt)
	}
	if evidenceList.Len() == 0 {
		evidenceList.WriteString("(no evidence gathered)\n")
	}

	gen := p.newGenerator("verdict", modelID, verdictSystem)
	payload, err := llm.GenerateValidated[verdictPayload](ctx, gen, []llm.Message{
		{Role: "user", Content: fmt.Sprintf(verdictPromptFmt, claimList.String(), evidenceList.String())},
	}, p.cfg.Pipeline.MaxSchemaRetries)
	if err != nil {
		return nil, err
	}

	out := &verdictOutput{Granularity: normalizeGranularity(payload.TopicGranularity)}

	seen := make(map[string]bool, len(claims))
	verdicts := make([]model.ClaimVerdict, 0, len(claims))
	for _, v := range payload.Verdicts {
		c, ok := byClaimID[v.ClaimID]
		if !ok || seen[v.ClaimID] {
			continue
		}
		seen[v.ClaimID] = true

		var cited []string
		for _, id := range v.SupportingEvidenceIDs {
			if knownEvidence[id] {
				cited = append(cited, id)
			}
		}

		verdicts = append(verdicts, model.ClaimVerdict{
			ClaimID:               c.ID,
			ClaimText:             c.Text,
			TruthPercentage:       model.ClampPercent(v.TruthPercentage),
			Confidence:            model.ClampPercent(v.Confidence),
			Reasoning:             v.Reasoning,
			SupportingEvidenceIDs: cited,
		})
	}

	for _, c := range claims {
		if seen[c.ID] {
			continue
		}
		verdicts = append(verdicts, model.ClaimVerdict{
			ClaimID:         c.ID,
			ClaimText:       c.Text,
			TruthPercentage: 50,
			Confidence:      10,
			Reasoning:       "No verdict was produced for this claim.",
		})
	}

	out.Verdicts = verdicts
	for _, a := range payload.ContextAnswers {
		out.ContextAnswers = append(out.ContextAnswers, model.ContextAnswer{
			Question:   a.Question,
			Answer:     a.Answer,
			Confidence: model.ClampPercent(a.Confidence),
		})
	}
	return out, nil
}

func normalizeGranularity(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "week", "month", "year", "none":
		return strings.ToLower(strings.TrimSpace(raw))
	default:
		return ""
	}
}
