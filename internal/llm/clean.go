// Package llm wraps raw model generation with JSON extraction, schema
// validation, and bounded repair retries. It is generic over the payload
// type: callers supply the struct the model must produce and the package
// drives the model until the output validates or attempts run out.
package llm

import "strings"

// CleanJSON strips markdown fences and surrounding prose from model output,
// returning the outermost JSON object or array.
func CleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	objStart := strings.Index(text, "{")
	arrStart := strings.Index(text, "[")

	if arrStart >= 0 && (objStart < 0 || arrStart < objStart) {
		if end := strings.LastIndex(text, "]"); end > arrStart {
			return strings.TrimSpace(text[arrStart : end+1])
		}
	}
	if objStart >= 0 {
		if end := strings.LastIndex(text, "}"); end > objStart {
			return strings.TrimSpace(text[objStart : end+1])
		}
	}

	return strings.TrimSpace(text)
}

// ExtractEmbeddedJSON pulls a JSON object out of an arbitrary error payload.
// Some providers fail structured-output calls while embedding the generated
// JSON in the error body; this is the salvage path for that failure mode.
// Returns "" when no braced block is present.
func ExtractEmbeddedJSON(payload string) string {
	start := strings.Index(payload, "{")
	end := strings.LastIndex(payload, "}")
	if start < 0 || end <= start {
		return ""
	}
	return payload[start : end+1]
}
