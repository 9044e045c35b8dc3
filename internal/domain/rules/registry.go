// Package rules loads the matching-rule configuration into a typed,
// validated registry.
//
// The rule document is JSON of the form:
//
//	{
//	  "matching_rules": {
//	    "<source account full name>": {
//	      "<target account full name>": {
//	        "date_offset": 1,
//	        "description_patterns": ["^Online Transfer to\\s+CHK\\s*\\.\\.\\.1605"]
//	      }
//	    }
//	  }
//	}
//
// Target order within a source is significant: when several target
// accounts hold eligible candidates, the first-registered target wins.
// The loader walks the JSON token stream so document order survives
// into the registry instead of being lost to map iteration.
package rules

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/splitbook/splitbook/internal/domain/ledger"
)

// Rule is one (source, target) matching rule with compiled patterns.
type Rule struct {
	SourceFullName string
	TargetFullName string
	DateOffset     int
	Patterns       []*regexp.Regexp
}

// MatchesDescription reports whether any of the rule's patterns is
// found in desc. Search semantics: a pattern anchors only if it
// anchors itself.
func (r *Rule) MatchesDescription(desc string) bool {
	for _, p := range r.Patterns {
		if p.MatchString(desc) {
			return true
		}
	}
	return false
}

// Registry indexes matching rules by source account full name.
// It is immutable after load.
type Registry struct {
	bySource map[string][]*Rule
	sources  []string
}

// RulesFor returns the rules for a source account in registration
// order, or nil when the account has no rules configured.
func (reg *Registry) RulesFor(sourceFullName string) []*Rule {
	return reg.bySource[sourceFullName]
}

// Sources returns the configured source account names in document order.
func (reg *Registry) Sources() []string {
	return reg.sources
}

// Len returns the total number of (source, target) rules.
func (reg *Registry) Len() int {
	n := 0
	for _, rs := range reg.bySource {
		n += len(rs)
	}
	return n
}

// ruleBody is the raw per-target rule document.
type ruleBody struct {
	DateOffset          int      `json:"date_offset"`
	DescriptionPatterns []string `json:"description_patterns"`
}

// LoadFile reads and parses a rule configuration file.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ledger.ConfigError{Detail: fmt.Sprintf("open rules file %s", path), Err: err}
	}
	defer f.Close()
	return Load(f)
}

// Load parses a rule configuration document. Any malformed pattern or
// negative date offset fails the whole load.
func Load(r io.Reader) (*Registry, error) {
	dec := json.NewDecoder(r)

	if err := expectDelim(dec, '{'); err != nil {
		return nil, &ledger.ConfigError{Detail: "rules document is not a JSON object", Err: err}
	}

	reg := &Registry{bySource: make(map[string][]*Rule)}
	seen := false

	for dec.More() {
		key, err := stringToken(dec)
		if err != nil {
			return nil, &ledger.ConfigError{Detail: "reading top-level key", Err: err}
		}
		if key != "matching_rules" {
			// Unknown top-level keys are skipped, not rejected.
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, &ledger.ConfigError{Detail: fmt.Sprintf("skipping key %q", key), Err: err}
			}
			continue
		}
		seen = true
		if err := parseSources(dec, reg); err != nil {
			return nil, err
		}
	}

	if !seen {
		return nil, &ledger.ConfigError{Detail: `rules document missing "matching_rules" key`}
	}
	return reg, nil
}

func parseSources(dec *json.Decoder, reg *Registry) error {
	if err := expectDelim(dec, '{'); err != nil {
		return &ledger.ConfigError{Detail: `"matching_rules" is not an object`, Err: err}
	}

	for dec.More() {
		source, err := stringToken(dec)
		if err != nil {
			return &ledger.ConfigError{Detail: "reading source account key", Err: err}
		}
		if _, dup := reg.bySource[source]; dup {
			return &ledger.ConfigError{Detail: fmt.Sprintf("duplicate source account %q", source)}
		}

		targets, err := parseTargets(dec, source)
		if err != nil {
			return err
		}
		reg.bySource[source] = targets
		reg.sources = append(reg.sources, source)
	}

	// Consume the closing brace of "matching_rules".
	if _, err := dec.Token(); err != nil {
		return &ledger.ConfigError{Detail: "unterminated matching_rules object", Err: err}
	}
	return nil
}

func parseTargets(dec *json.Decoder, source string) ([]*Rule, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, &ledger.ConfigError{Detail: fmt.Sprintf("rules for source %q are not an object", source), Err: err}
	}

	var out []*Rule
	for dec.More() {
		target, err := stringToken(dec)
		if err != nil {
			return nil, &ledger.ConfigError{Detail: fmt.Sprintf("reading target key under %q", source), Err: err}
		}

		var body ruleBody
		if err := dec.Decode(&body); err != nil {
			return nil, &ledger.ConfigError{
				Detail: fmt.Sprintf("rule %s -> %s", source, target), Err: err,
			}
		}

		rule, err := buildRule(source, target, body)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}

	if _, err := dec.Token(); err != nil {
		return nil, &ledger.ConfigError{Detail: fmt.Sprintf("unterminated rules object for %q", source), Err: err}
	}
	return out, nil
}

func buildRule(source, target string, body ruleBody) (*Rule, error) {
	if body.DateOffset < 0 {
		return nil, &ledger.ConfigError{
			Detail: fmt.Sprintf("rule %s -> %s: date_offset %d is negative", source, target, body.DateOffset),
		}
	}
	if len(body.DescriptionPatterns) == 0 {
		return nil, &ledger.ConfigError{
			Detail: fmt.Sprintf("rule %s -> %s: no description_patterns", source, target),
		}
	}

	rule := &Rule{
		SourceFullName: source,
		TargetFullName: target,
		DateOffset:     body.DateOffset,
	}
	for _, raw := range body.DescriptionPatterns {
		p, err := regexp.Compile(raw)
		if err != nil {
			return nil, &ledger.ConfigError{
				Detail: fmt.Sprintf("rule %s -> %s: pattern %q", source, target, raw), Err: err,
			}
		}
		rule.Patterns = append(rule.Patterns, p)
	}
	return rule, nil
}

// ResolveAccounts checks every account name in the registry against
// the known-account predicate and reports all unresolvable names in a
// single error. Runs once per load, not per transaction.
func (reg *Registry) ResolveAccounts(known func(fullName string) bool) error {
	var missing []string
	for _, source := range reg.sources {
		if !known(source) {
			missing = append(missing, source)
		}
		for _, rule := range reg.bySource[source] {
			if !known(rule.TargetFullName) {
				missing = append(missing, rule.TargetFullName)
			}
		}
	}
	if len(missing) > 0 {
		return &ledger.ConfigError{
			Detail: fmt.Sprintf("rules reference unknown accounts: %v", missing),
		}
	}
	return nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func stringToken(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	s, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected string key, got %v", tok)
	}
	return s, nil
}
