package domain

// TestCase is a structured test case synthesized from retrieved documentation
type TestCase struct {
	TestID             string   `json:"test_id"`
	TestName           string   `json:"test_name"`
	TestType           string   `json:"test_type"`
	Description        string   `json:"description"`
	Preconditions      []string `json:"preconditions"`
	Steps              []string `json:"steps"`
	ExpectedResult     string   `json:"expected_result"`
	DocumentReferences []string `json:"document_references"`
}

// TestCaseResult is the outcome of one synthesis call.
// On parse failure Success is false and RawResponse holds the model output.
type TestCaseResult struct {
	Success         bool       `json:"success"`
	TestCases       []TestCase `json:"test_cases"`
	SourceDocuments []string   `json:"source_documents"`
	Error           string     `json:"error,omitempty"`
	RawResponse     string     `json:"raw_response,omitempty"`
}

// ValidationReport is the result of static inspection of a generated script
type ValidationReport struct {
	Valid    bool     `json:"valid"`
	Warnings []string `json:"warnings"`
	Errors   []string `json:"errors"`
}

// GeneratedScript pairs a generated automation script with its validation report
type GeneratedScript struct {
	TestID      string           `json:"test_id"`
	FileName    string           `json:"file_name"`
	Script      string           `json:"script"`
	Validation  ValidationReport `json:"validation"`
	ArtifactURI string           `json:"artifact_uri,omitempty"`
}

// ScriptFileName returns the download name for a test case's script
func ScriptFileName(testID string) string {
	if testID == "" {
		testID = "script"
	}
	return "test_" + testID + ".py"
}
