package scriptgen

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/testforge/qaagent/internal/domain"
	"github.com/testforge/qaagent/internal/services/discovery"
)

// SystemPrompt returns the script generation system prompt
func SystemPrompt() string {
	return `You are an expert Selenium test automation engineer. Generate a complete, executable Python Selenium script based on the test case and HTML structure provided.

REQUIREMENTS:
1. Use ONLY the selectors and elements present in the provided HTML structure
2. Include proper error handling with try-except blocks
3. Add explicit waits using WebDriverWait
4. Include logging statements
5. Use the ChromeDriver with webdriver_manager
6. Generate complete, runnable code
7. Do NOT use placeholder selectors; use actual IDs, names, or XPath from the HTML
8. Return ONLY Python code without markdown formatting`
}

// UserPrompt describes the test case and the page's interactive elements
func UserPrompt(tc domain.TestCase, structure discovery.PageStructure) string {
	var sb strings.Builder

	sb.WriteString("Generate a complete Selenium test script for the following test case:\n\n")
	sb.WriteString("TEST CASE:\n")
	fmt.Fprintf(&sb, "Test ID: %s\n", orNA(tc.TestID))
	fmt.Fprintf(&sb, "Test Name: %s\n", orNA(tc.TestName))
	fmt.Fprintf(&sb, "Description: %s\n\n", orNA(tc.Description))

	sb.WriteString("Steps:\n")
	for i, step := range tc.Steps {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, step)
	}
	fmt.Fprintf(&sb, "\nExpected Result: %s\n\n", orNA(tc.ExpectedResult))

	sb.WriteString("HTML STRUCTURE:\n")
	fmt.Fprintf(&sb, "Forms: %s\n", indentJSON(structure.Forms))
	fmt.Fprintf(&sb, "Buttons: %s\n", indentJSON(structure.Buttons))
	fmt.Fprintf(&sb, "Inputs: %s\n", indentJSON(structure.Inputs))
	fmt.Fprintf(&sb, "Selects: %s\n", indentJSON(structure.Selects))

	sb.WriteString(`
Generate a complete Python Selenium script with:
1. Proper imports (selenium, webdriver_manager, logging)
2. WebDriver setup using webdriver_manager
3. Test execution with error handling
4. Explicit waits
5. Assertions for validation
6. Proper cleanup
7. Use actual element selectors from the HTML structure above

Generate the script:`)

	return sb.String()
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func indentJSON(v interface{}) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(data)
}
