package testdesign

import (
	"fmt"
	"strings"

	"github.com/testforge/qaagent/internal/domain"
)

// NoContextNotice replaces the context block when retrieval returns nothing
const NoContextNotice = "No relevant documentation was found in the knowledge base for this request. " +
	"If you cannot ground a test case in documentation, return an empty JSON array []."

// SystemPrompt returns the test design system prompt
func SystemPrompt() string {
	return `You are an expert QA engineer who designs precise, traceable test cases for web applications.

## Rules
1. Use ONLY facts stated in the provided documentation context. Never invent features, prices, codes or messages.
2. Every test case must cite the source documents it is based on in "document_references".
3. Cover both positive and negative behaviour where the documentation describes it.
4. Steps are short imperative sentences in execution order.
5. Respond with a JSON array only. No prose, no markdown.`
}

// UserPrompt asks for test cases answering query, grounded in contextBlock
func UserPrompt(query, contextBlock string) string {
	var sb strings.Builder

	sb.WriteString("# Documentation Context\n\n")
	sb.WriteString(contextBlock)
	sb.WriteString("\n\n# Request\n\n")
	sb.WriteString(query)
	sb.WriteString(`

# Output Format
Return a JSON array where every element has exactly these fields:
[
  {
    "test_id": "TC-001",
    "test_name": "Short descriptive name",
    "test_type": "positive|negative|boundary|ui|integration",
    "description": "What this test validates",
    "preconditions": ["State required before the first step"],
    "steps": ["Step 1", "Step 2"],
    "expected_result": "Observable outcome",
    "document_references": ["source_file.md"]
  }
]

Reference documents by the file names shown in the [Source: ...] headers.`)

	return sb.String()
}

// BuildContext renders retrieved chunks with source attribution, keeping the
// result within maxRunes. Later chunks are dropped; the chunk that crosses the
// limit is cut.
func BuildContext(results []domain.RetrievalResult, maxRunes int) string {
	if len(results) == 0 {
		return NoContextNotice
	}

	var sb strings.Builder
	used := 0
	for i, r := range results {
		var block strings.Builder
		if i > 0 {
			block.WriteString("\n\n")
		}
		fmt.Fprintf(&block, "[Source: %s | chunk %d/%d]\n", r.Metadata.Source, r.Metadata.ChunkID+1, r.Metadata.TotalChunks)
		block.WriteString(r.Content)

		text := []rune(block.String())
		if maxRunes > 0 && used+len(text) > maxRunes {
			sb.WriteString(string(text[:maxRunes-used]))
			break
		}
		sb.WriteString(string(text))
		used += len(text)
	}

	return sb.String()
}
