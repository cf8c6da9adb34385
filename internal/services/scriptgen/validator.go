package scriptgen

import (
	"strings"

	"github.com/testforge/qaagent/internal/domain"
)

var (
	requiredImports = []string{"selenium", "webdriver", "WebDriverWait"}
	seleniumMethods = []string{"find_element", "click", "send_keys"}
)

// Validate lints a generated script by substring inspection. The script is
// never executed, so a passing report does not mean the script works.
func Validate(script string) domain.ValidationReport {
	report := domain.ValidationReport{
		Valid:    true,
		Warnings: []string{},
		Errors:   []string{},
	}

	for _, imp := range requiredImports {
		if !strings.Contains(script, imp) {
			report.Warnings = append(report.Warnings, "Missing import: "+imp)
		}
	}

	hasMethod := false
	for _, m := range seleniumMethods {
		if strings.Contains(script, m) {
			hasMethod = true
			break
		}
	}
	if !hasMethod {
		report.Errors = append(report.Errors, "No Selenium methods found")
		report.Valid = false
	}

	if !strings.Contains(script, "try:") || !strings.Contains(script, "except") {
		report.Warnings = append(report.Warnings, "Missing error handling")
	}

	return report
}

// StripFences removes a leading ``` line and a trailing ``` line. Fences
// inside the script are left alone.
func StripFences(response string) string {
	cleaned := strings.TrimSpace(response)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}

	lines := strings.Split(cleaned, "\n")
	if strings.HasPrefix(strings.TrimSpace(lines[0]), "```") {
		lines = lines[1:]
	}
	if n := len(lines); n > 0 && strings.HasPrefix(strings.TrimSpace(lines[n-1]), "```") {
		lines = lines[:n-1]
	}
	return strings.Join(lines, "\n")
}
