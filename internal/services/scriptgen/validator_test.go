package scriptgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const completeScript = `import logging
from selenium import webdriver
from selenium.webdriver.common.by import By
from selenium.webdriver.support.ui import WebDriverWait

try:
    driver.find_element(By.ID, "pay").click()
except Exception as e:
    logging.error(e)
`

func TestValidate(t *testing.T) {
	tests := []struct {
		name         string
		script       string
		wantValid    bool
		wantErrors   []string
		wantWarnings []string
	}{
		{
			name:         "complete script",
			script:       completeScript,
			wantValid:    true,
			wantErrors:   []string{},
			wantWarnings: []string{},
		},
		{
			name:         "no selenium methods",
			script:       "from selenium import webdriver\nWebDriverWait\ntry:\n    pass\nexcept:\n    pass\n",
			wantValid:    false,
			wantErrors:   []string{"No Selenium methods found"},
			wantWarnings: []string{},
		},
		{
			name:         "methods without try/except",
			script:       "from selenium import webdriver\nWebDriverWait(driver, 10)\ndriver.find_element(By.ID, 'x').send_keys('a')\n",
			wantValid:    true,
			wantErrors:   []string{},
			wantWarnings: []string{"Missing error handling"},
		},
		{
			name:       "empty script",
			script:     "",
			wantValid:  false,
			wantErrors: []string{"No Selenium methods found"},
			wantWarnings: []string{
				"Missing import: selenium",
				"Missing import: webdriver",
				"Missing import: WebDriverWait",
				"Missing error handling",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := Validate(tt.script)
			assert.Equal(t, tt.wantValid, report.Valid)
			assert.Equal(t, tt.wantErrors, report.Errors)
			assert.Equal(t, tt.wantWarnings, report.Warnings)
		})
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fence", "  print('hi')  ", "print('hi')"},
		{"python fence", "```python\nprint('hi')\n```", "print('hi')"},
		{"leading fence only", "```\nprint('hi')", "print('hi')"},
		{"inner fences kept", "```python\ns = '''```'''\nprint(s)\n```", "s = '''```'''\nprint(s)"},
		{"trailing fence without leading is kept", "print('hi')\n```", "print('hi')\n```"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFences(tt.in))
		})
	}
}
