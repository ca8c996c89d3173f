package config

import (
	"fmt"
	"regexp"
	"strings"
)

// SensitivePattern represents a pattern that might indicate sensitive data
type SensitivePattern struct {
	Name        string
	Pattern     *regexp.Regexp
	Description string
}

var sensitivePatterns = []SensitivePattern{
	{
		Name:        "Token",
		Pattern:     regexp.MustCompile(`(?i)(token|auth[_-]?token|access[_-]?token|bearer)\s*=\s*['"][a-zA-Z0-9_-]{15,}['"]`),
		Description: "Potential authentication token detected",
	},
	{
		Name:        "GitHub Token",
		Pattern:     regexp.MustCompile(`(gh[pousr]_[a-zA-Z0-9]{36,}|github_pat_[a-zA-Z0-9_]{22,})`),
		Description: "Potential GitHub token detected",
	},
	{
		Name:        "Credentials in URL",
		Pattern:     regexp.MustCompile(`https?://[^/\s'"@]+:[^/\s'"@]+@`),
		Description: "URL with embedded credentials detected",
	},
	{
		Name:        "Password",
		Pattern:     regexp.MustCompile(`(?i)(password|passwd|pwd)\s*=\s*['"].+['"]`),
		Description: "Potential password detected",
	},
}

// SensitiveDataFinding represents a detected sensitive data instance
type SensitiveDataFinding struct {
	PatternName string
	Description string
	Line        int
	Preview     string // Redacted preview of the match
}

// DetectSensitiveData scans configuration content for potential sensitive data.
// A line matching several patterns is reported once, under the first.
func DetectSensitiveData(content string) []SensitiveDataFinding {
	var findings []SensitiveDataFinding

	for lineNum, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		for _, pattern := range sensitivePatterns {
			if !pattern.Pattern.MatchString(line) {
				continue
			}
			findings = append(findings, SensitiveDataFinding{
				PatternName: pattern.Name,
				Description: pattern.Description,
				Line:        lineNum + 1,
				Preview:     redactSensitiveValue(line),
			})
			break
		}
	}

	return findings
}

// redactSensitiveValue creates a redacted preview of a line with sensitive data
func redactSensitiveValue(line string) string {
	eqIdx := strings.Index(line, "=")
	if eqIdx == -1 {
		line = strings.TrimSpace(line)
		if len(line) > 30 {
			return line[:30] + "... [REDACTED]"
		}
		return line + " [REDACTED]"
	}

	return strings.TrimSpace(line[:eqIdx]) + " = [REDACTED]"
}

// FormatSensitiveDataWarning formats findings into a user-friendly warning message
func FormatSensitiveDataWarning(findings []SensitiveDataFinding) string {
	if len(findings) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Potential sensitive data detected in configuration:\n")
	for i, finding := range findings {
		fmt.Fprintf(&sb, "%d. %s (line %d): %s\n", i+1, finding.Description, finding.Line, finding.Preview)
	}
	sb.WriteString("preflight never reads credentials from its config; export GITHUB_TOKEN or GH_TOKEN instead.\n")

	return sb.String()
}
