package security

import (
	"regexp"
	"strings"
)

// InjectionReport is the outcome of scanning one query text.
type InjectionReport struct {
	Suspicious bool     `json:"suspicious"`
	RiskScore  int      `json:"riskScore"`
	Patterns   []string `json:"patterns,omitempty"`
}

type injectionPattern struct {
	name   string
	regex  *regexp.Regexp
	weight int
}

// InjectionDetector scans natural-language and SQL text for structural
// red flags. The catalog is fixed at construction; scanning is read-only
// and safe for concurrent use.
type InjectionDetector struct {
	patterns   []injectionPattern
	sensitive  []string
	restricted map[string][]string
	threshold  int
}

// NewInjectionDetector builds the detector with its fixed pattern catalog.
// Scores above threshold mark the query suspicious; the caller must block
// and log.
func NewInjectionDetector(threshold int) *InjectionDetector {
	if threshold <= 0 {
		threshold = 10
	}
	return &InjectionDetector{
		threshold: threshold,
		patterns: []injectionPattern{
			{"stacked_statements", regexp.MustCompile(`;\s*\w`), 5},
			{"union_exfiltration", regexp.MustCompile(`\bunion\b[\s\S]*\bselect\b`), 6},
			{"comment_truncation", regexp.MustCompile(`(--|/\*|\*/|#\s*$)`), 4},
			{"tautology", regexp.MustCompile(`\b(or|and)\s+('?\d+'?\s*=\s*'?\d+'?|true)\b`), 6},
			{"time_based_blind", regexp.MustCompile(`\b(sleep\s*\(|benchmark\s*\(|pg_sleep\s*\(|waitfor\s+delay)`), 6},
			{"command_execution", regexp.MustCompile(`\b(xp_cmdshell|exec\s*\(|execute\s+immediate|load_file\s*\(|into\s+(outfile|dumpfile))\b`), 6},
			{"schema_probing", regexp.MustCompile(`\b(information_schema|pg_catalog|sqlite_master|sysobjects)\b`), 4},
			{"destructive_statement", regexp.MustCompile(`\b(drop\s+table|truncate\s+table|delete\s+from|alter\s+table|grant\s+|revoke\s+)`), 6},
			{"hex_obfuscation", regexp.MustCompile(`\b0x[0-9a-f]{8,}\b|char\s*\(\s*\d+\s*(,\s*\d+\s*)+\)`), 3},
		},
		sensitive: []string{
			"password", "passwd", "secret", "token", "api_key", "ssn",
			"social_security", "credit_card", "card_number", "cvv", "admin",
		},
		restricted: map[string][]string{
			"viewer":    {"salary", "delete", "drop", "truncate", "grant"},
			"developer": {"salary", "payroll", "grant"},
			"guest":     {"salary", "delete", "drop", "password", "export"},
		},
	}
}

// Detect scans the query. The role, when given, adds that role's restricted
// keyword list to the scan. A recognized structural pattern is flagged
// regardless of how much benign text surrounds it.
func (d *InjectionDetector) Detect(query, role string) InjectionReport {
	lower := strings.ToLower(query)
	report := InjectionReport{}

	for _, p := range d.patterns {
		if p.regex.MatchString(lower) {
			report.RiskScore += p.weight
			report.Patterns = append(report.Patterns, p.name)
		}
	}

	for _, keyword := range d.sensitive {
		if containsWord(lower, keyword) {
			report.RiskScore += 2
			report.Patterns = append(report.Patterns, "sensitive:"+keyword)
		}
	}

	restrictedHit := false
	if role != "" {
		for _, keyword := range d.restricted[strings.ToLower(role)] {
			if containsWord(lower, keyword) {
				restrictedHit = true
				report.RiskScore += 3
				report.Patterns = append(report.Patterns, "restricted:"+keyword)
			}
		}
	}

	// A keyword restricted for the caller's role blocks on its own,
	// independent of the accumulated score.
	report.Suspicious = restrictedHit || report.RiskScore > d.threshold
	return report
}

var wordBoundary = regexp.MustCompile(`[a-z0-9_]+`)

func containsWord(lower, keyword string) bool {
	for _, w := range wordBoundary.FindAllString(lower, -1) {
		if w == keyword {
			return true
		}
	}
	return false
}
