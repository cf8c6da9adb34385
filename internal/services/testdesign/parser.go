package testdesign

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/testforge/qaagent/internal/domain"
)

// ParseTestCases decodes model output into test cases. The text is trimmed and
// one surrounding code fence is removed; a bare array or an object with a
// "test_cases" array is accepted. Nothing else is repaired.
func ParseTestCases(raw string) ([]domain.TestCase, error) {
	text := stripFence(strings.TrimSpace(raw))
	if text == "" {
		return nil, domain.ErrResponseParse(raw, errors.New("empty response"))
	}

	data := []byte(text)
	var cases []domain.TestCase

	if bytes.HasPrefix(data, []byte("{")) {
		var wrapped struct {
			TestCases *[]domain.TestCase `json:"test_cases"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, domain.ErrResponseParse(raw, err)
		}
		if wrapped.TestCases == nil {
			return nil, domain.ErrResponseParse(raw, errors.New(`object has no "test_cases" array`))
		}
		cases = *wrapped.TestCases
	} else if err := json.Unmarshal(data, &cases); err != nil {
		return nil, domain.ErrResponseParse(raw, err)
	}

	if cases == nil {
		cases = []domain.TestCase{}
	}
	for i := range cases {
		normalize(&cases[i], i)
	}
	return cases, nil
}

// stripFence removes one ``` fence pair around the whole text
func stripFence(text string) string {
	if !strings.HasPrefix(text, "```") || !strings.HasSuffix(text, "```") || len(text) < 6 {
		return text
	}

	inner := strings.TrimSuffix(text[3:], "```")
	// Drop a language tag such as ```json
	if nl := strings.IndexByte(inner, '\n'); nl >= 0 && !strings.ContainsAny(inner[:nl], "[{") {
		inner = inner[nl+1:]
	}
	return strings.TrimSpace(inner)
}

// normalize fills list fields so they serialize as [] and assigns missing IDs
func normalize(tc *domain.TestCase, index int) {
	if tc.TestID == "" {
		tc.TestID = fmt.Sprintf("TC-%03d", index+1)
	}
	if tc.Preconditions == nil {
		tc.Preconditions = []string{}
	}
	if tc.Steps == nil {
		tc.Steps = []string{}
	}
	if tc.DocumentReferences == nil {
		tc.DocumentReferences = []string{}
	}
}
