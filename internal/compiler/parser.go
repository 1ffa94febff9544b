package compiler

import (
	"strings"

	"querygate/internal/database/metadata"
)

// Confidence contributions. A table match alone is enough to clear the
// generation floor; a recognized rule raises it further.
const (
	tableConfidence = 0.3
	ruleConfidence  = 0.25
)

// parseRule pairs a matcher with an IR builder. Rules are tried in order
// and only the first rule whose builder succeeds applies.
type parseRule struct {
	name string
	// match reports whether the rule recognizes the text at all.
	match func(text string) bool
	// build fills in the IR. Returning false rejects the match, for
	// example when a join template needs a table the schema lacks, and
	// lets later rules try.
	build func(ir *QueryIR, text string, snap *metadata.SchemaSnapshot) bool
}

// Parser turns free text into a QueryIR using an ordered rule list. It
// holds only immutable rule tables and is safe for concurrent use.
type Parser struct {
	rules []parseRule
}

// NewParser builds a parser with the default rule set, business
// intelligence templates first.
func NewParser() *Parser {
	return &Parser{rules: defaultRules()}
}

// Parse identifies the target table and applies the first matching rule.
// When no table from the snapshot appears in the text it returns a
// zero-confidence IR rather than guessing.
func (p *Parser) Parse(text string, snap *metadata.SchemaSnapshot) *QueryIR {
	lower := strings.ToLower(text)

	ir := &QueryIR{Columns: []string{"*"}}
	ir.Table = identifyTable(lower, snap)
	if ir.Table == "" {
		return ir
	}
	ir.Confidence = tableConfidence

	for _, rule := range p.rules {
		if !rule.match(lower) {
			continue
		}
		if !rule.build(ir, lower, snap) {
			continue
		}
		ir.MatchedRule = rule.name
		ir.Confidence += ruleConfidence
		break
	}
	return ir
}

// identifyTable picks the longest table name whose plural or naive
// singular form occurs in the text.
func identifyTable(lower string, snap *metadata.SchemaSnapshot) string {
	if snap == nil {
		return ""
	}
	best := ""
	for _, table := range snap.TableNames() {
		for _, form := range nameForms(strings.ToLower(table)) {
			if containsToken(lower, form) && len(table) > len(best) {
				best = table
			}
		}
	}
	return best
}

// nameForms returns the spellings under which a table may appear in text.
func nameForms(table string) []string {
	forms := []string{table}
	switch {
	case strings.HasSuffix(table, "ies"):
		forms = append(forms, table[:len(table)-3]+"y")
	case strings.HasSuffix(table, "es"):
		forms = append(forms, table[:len(table)-2], table[:len(table)-1])
	case strings.HasSuffix(table, "s"):
		forms = append(forms, table[:len(table)-1])
	default:
		forms = append(forms, table+"s")
	}
	return forms
}

// containsToken reports whether word occurs in text on token boundaries,
// so "order" does not match inside "borders".
func containsToken(text, word string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isWordByte(text[start-1])
		afterOK := end == len(text) || !isWordByte(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}
