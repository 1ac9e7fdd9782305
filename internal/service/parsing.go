package service

import "github.com/Marcusng88/FraudGuard/internal/llmtext"

// extractJSON applies spec §4.1's parsing rules to a raw LLM completion.
// The rules themselves live in internal/llmtext so the provider clients
// can reuse them without importing this package.
func extractJSON(raw string) string {
	return llmtext.ExtractJSON(raw)
}
