package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Message is one conversational turn sent to a generator.
type Message struct {
	Role    string
	Content string
}

// Generator is the opaque generation call being wrapped. Implementations
// return the raw model text.
type Generator interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, messages []Message) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, messages []Message) (string, error) {
	return f(ctx, messages)
}

// SchemaComplianceError reports that generation never produced output
// passing schema validation within the attempt budget.
type SchemaComplianceError struct {
	Attempts   int
	LastIssues []ValidationIssue
}

func (e *SchemaComplianceError) Error() string {
	detail := "no issues recorded"
	if len(e.LastIssues) > 0 {
		detail = e.LastIssues[0].Path + ": " + e.LastIssues[0].Message
	}
	return fmt.Sprintf("llm: output failed schema validation after %d attempt(s): %s", e.Attempts, detail)
}

// maxRepairIssues caps how many violations a repair prompt enumerates.
const maxRepairIssues = 10

// badOutputExcerptLen caps how much of the previous bad output is echoed
// back in the repair prompt.
const badOutputExcerptLen = 600

// GenerateValidated drives gen until its output parses and validates as T,
// or maxRetries repair attempts are exhausted. Each retry appends a repair
// prompt describing the violations to the last user message. On a
// generation error whose payload embeds recoverable JSON, the embedded text
// is validated before the error is surfaced.
func GenerateValidated[T any](ctx context.Context, gen Generator, messages []Message, maxRetries int) (T, error) {
	var zero T
	if maxRetries < 0 {
		maxRetries = 0
	}

	work := append([]Message(nil), messages...)
	var lastIssues []ValidationIssue
	attempts := 0

	for attempts <= maxRetries {
		attempts++

		raw, err := gen.Generate(ctx, work)
		if err != nil {
			// Salvage path: structured-output failures sometimes carry the
			// generated JSON inside the error payload.
			if embedded := ExtractEmbeddedJSON(err.Error()); embedded != "" {
				if out, issues := ParseAndValidate[T](embedded); len(issues) == 0 {
					zap.L().Warn("llm: recovered payload from provider error",
						zap.Int("attempt", attempts),
					)
					return out, nil
				}
			}
			return zero, err
		}

		out, issues := ParseAndValidate[T](CleanJSON(raw))
		if len(issues) == 0 {
			return out, nil
		}
		lastIssues = issues

		zap.L().Warn("llm: output failed schema validation",
			zap.Int("attempt", attempts),
			zap.Int("issues", len(issues)),
			zap.String("first_issue", issues[0].Path+": "+issues[0].Message),
		)

		if attempts > maxRetries {
			break
		}
		work = appendRepairPrompt(work, issues, raw)
	}

	return zero, &SchemaComplianceError{Attempts: attempts, LastIssues: lastIssues}
}

// appendRepairPrompt returns messages with the repair instructions appended
// to the last user message, or added as a new user message when none exists.
func appendRepairPrompt(messages []Message, issues []ValidationIssue, badOutput string) []Message {
	repair := BuildRepairPrompt(issues, badOutput)

	out := append([]Message(nil), messages...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i].Role == "user" {
			out[i].Content = out[i].Content + "\n\n" + repair
			return out
		}
	}
	return append(out, Message{Role: "user", Content: repair})
}

// BuildRepairPrompt renders the violations, generic fix suggestions, and a
// truncated excerpt of the bad output into retry instructions.
func BuildRepairPrompt(issues []ValidationIssue, badOutput string) string {
	var b strings.Builder
	b.WriteString("Your previous response failed schema validation. Fix these errors and return only valid JSON:\n")

	shown := issues
	if len(shown) > maxRepairIssues {
		shown = shown[:maxRepairIssues]
	}
	for _, issue := range shown {
		fmt.Fprintf(&b, "- %s: %s [%s]\n", issue.Path, issue.Message, issue.Code)
	}
	if len(issues) > maxRepairIssues {
		fmt.Fprintf(&b, "- (%d more errors omitted)\n", len(issues)-maxRepairIssues)
	}

	if suggestions := fixSuggestions(shown); len(suggestions) > 0 {
		b.WriteString("\nHow to fix:\n")
		for _, s := range suggestions {
			b.WriteString("- ")
			b.WriteString(s)
			b.WriteString("\n")
		}
	}

	excerpt := badOutput
	if len(excerpt) > badOutputExcerptLen {
		excerpt = excerpt[:badOutputExcerptLen] + "…"
	}
	b.WriteString("\nYour previous output was:\n")
	b.WriteString(excerpt)
	return b.String()
}

// fixSuggestions derives one generic suggestion per distinct error code.
func fixSuggestions(issues []ValidationIssue) []string {
	seen := map[string]bool{}
	var out []string
	add := func(code, text string) {
		if !seen[code] {
			seen[code] = true
			out = append(out, text)
		}
	}

	for _, issue := range issues {
		switch issue.Code {
		case CodeTypeMismatch:
			add(issue.Code, "Use the exact JSON type each field expects (numbers unquoted, strings quoted).")
		case CodeParseFailure:
			add(issue.Code, "Return a single well-formed JSON object with no surrounding prose.")
		case "oneof":
			add(issue.Code, "Use only the allowed enum values, spelled exactly as listed.")
		case "required":
			add(issue.Code, "Include every required field, even when the value is empty.")
		case "min", "max":
			add("bounds", "Respect the stated array and string length bounds.")
		case "gte", "lte":
			add("range", "Keep numeric fields within their stated ranges.")
		}
	}
	return out
}
