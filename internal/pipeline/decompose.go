package pipeline

import (
	"context"
	"fmt"

	"github.com/factharbor/verify-cli/internal/llm"
)

const decomposeSystem = `You decompose text into atomic, independently verifiable factual claims.
Each claim must be a single statement about the world that could be checked
against external sources. Skip opinions, predictions, and rhetorical
questions. Return JSON only.`

const decomposePromptFmt = `Decompose the following text into at most %d atomic factual claims.

Text:
%s

Return JSON of the form:
{"claims": [{"text": "..."}]}`

// claim is one atomic claim produced by decomposition.
type claim struct {
	ID   string
	Text string
}

type decomposePayload struct {
	Claims []struct {
		Text string `json:"text" validate:"required,min=10"`
	} `json:"claims" validate:"required,dive"`
}

func (p *Pipeline) decompose(ctx context.Context, inputText string) ([]claim, error) {
	maxClaims := p.cfg.Pipeline.MaxClaims
	if maxClaims <= 0 {
		maxClaims = 10
	}

	gen := p.newGenerator("decompose", p.cfg.Anthropic.HaikuModel, decomposeSystem)
	payload, err := llm.GenerateValidated[decomposePayload](ctx, gen, []llm.Message{
		{Role: "user", Content: fmt.Sprintf(decomposePromptFmt, maxClaims, inputText)},
	}, p.cfg.Pipeline.MaxSchemaRetries)
	if err != nil {
		return nil, err
	}

	claims := make([]claim, 0, len(payload.Claims))
	for _, c := range payload.Claims {
		if len(claims) >= maxClaims {
			break
		}
		claims = append(claims, claim{ID: newID("c"), Text: c.Text})
	}
	return claims, nil
}
