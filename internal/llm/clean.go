package llm

import (
	"strings"

	"github.com/wasilibs/go-re2"
)

// fencePattern matches a response wrapped in a single markdown code fence,
// with or without a language tag (```json ... ```).
var fencePattern = re2.MustCompile("(?s)^```[a-zA-Z0-9]*[ \t]*\n?(.*?)\n?```$")

// CleanJSONResponse strips markdown code fencing and surrounding whitespace
// from raw model output so it can be fed to the JSON decoder. Models routinely
// wrap JSON in ```json ... ``` blocks, which breaks parsing.
//
// The function is idempotent: already-clean input comes back unchanged, and an
// empty string is returned as-is.
func CleanJSONResponse(response string) string {
	cleaned := strings.TrimSpace(response)
	if cleaned == "" {
		return cleaned
	}

	if m := fencePattern.FindStringSubmatch(cleaned); m != nil {
		return strings.TrimSpace(m[1])
	}

	// Unbalanced fences: strip whichever side is present.
	if idx := strings.Index(cleaned, "\n"); strings.HasPrefix(cleaned, "```") && idx != -1 {
		cleaned = cleaned[idx+1:]
	}
	cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")

	return strings.TrimSpace(cleaned)
}
