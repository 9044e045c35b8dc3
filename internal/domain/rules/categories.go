package rules

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/splitbook/splitbook/internal/domain/ledger"
)

// Categories is the payee-to-category lookup used when an imported
// line names no contra account. The document is JSON mapping category
// account full names to payee patterns:
//
//	{
//	  "Expenses:Food:Groceries": [
//	    {"payee": "WHOLE FOODS", "type": "literal"},
//	    {"payee": "^TRADER JOE", "type": "regex"}
//	  ]
//	}
//
// Patterns match case-insensitively against the normalized payee, in
// document order; the first hit wins. Like Registry, the loader walks
// the token stream so document order is the lookup order.
type Categories struct {
	rules []*categoryRule
	names []string
}

type categoryRule struct {
	categoryFullName string
	pattern          *regexp.Regexp
}

type categoryPatternBody struct {
	Payee string `json:"payee"`
	Type  string `json:"type"`
}

// Match returns the category account full name for a normalized payee,
// or "" when no pattern matches.
func (c *Categories) Match(payeeNorm string) string {
	if payeeNorm == "" {
		return ""
	}
	for _, r := range c.rules {
		if r.pattern.MatchString(payeeNorm) {
			return r.categoryFullName
		}
	}
	return ""
}

// CategoryNames returns the category account names in document order.
func (c *Categories) CategoryNames() []string {
	return c.names
}

// Len returns the total number of payee patterns.
func (c *Categories) Len() int {
	return len(c.rules)
}

// LoadCategoriesFile reads and parses a category lookup file. A
// missing file is an empty lookup, not an error.
func LoadCategoriesFile(path string) (*Categories, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Categories{}, nil
		}
		return nil, &ledger.ConfigError{Detail: fmt.Sprintf("open category rules file %s", path), Err: err}
	}
	defer f.Close()
	return LoadCategories(f)
}

// LoadCategories parses a category lookup document. Any malformed
// pattern or unknown pattern type fails the whole load.
func LoadCategories(r io.Reader) (*Categories, error) {
	dec := json.NewDecoder(r)

	if err := expectDelim(dec, '{'); err != nil {
		return nil, &ledger.ConfigError{Detail: "category document is not a JSON object", Err: err}
	}

	cats := &Categories{}
	seen := make(map[string]bool)

	for dec.More() {
		category, err := stringToken(dec)
		if err != nil {
			return nil, &ledger.ConfigError{Detail: "reading category key", Err: err}
		}
		if seen[category] {
			return nil, &ledger.ConfigError{Detail: fmt.Sprintf("duplicate category %q", category)}
		}

		var defs []categoryPatternBody
		if err := dec.Decode(&defs); err != nil {
			return nil, &ledger.ConfigError{
				Detail: fmt.Sprintf("patterns for category %q", category), Err: err,
			}
		}
		if len(defs) == 0 {
			return nil, &ledger.ConfigError{Detail: fmt.Sprintf("category %q: no patterns", category)}
		}
		for _, def := range defs {
			p, err := compileCategoryPattern(category, def)
			if err != nil {
				return nil, err
			}
			cats.rules = append(cats.rules, &categoryRule{categoryFullName: category, pattern: p})
		}

		seen[category] = true
		cats.names = append(cats.names, category)
	}

	return cats, nil
}

func compileCategoryPattern(category string, def categoryPatternBody) (*regexp.Regexp, error) {
	if def.Payee == "" {
		return nil, &ledger.ConfigError{Detail: fmt.Sprintf("category %q: empty payee pattern", category)}
	}

	raw := def.Payee
	switch def.Type {
	case "", "literal":
		raw = regexp.QuoteMeta(raw)
	case "regex":
	default:
		return nil, &ledger.ConfigError{
			Detail: fmt.Sprintf("category %q: unknown pattern type %q", category, def.Type),
		}
	}

	p, err := regexp.Compile("(?i)" + raw)
	if err != nil {
		return nil, &ledger.ConfigError{
			Detail: fmt.Sprintf("category %q: pattern %q", category, def.Payee), Err: err,
		}
	}
	return p, nil
}

// Trailing reference numbers, card digits and dates that statement
// exports append to the payee. Applied in order, once each.
var payeeStrip = []*regexp.Regexp{
	regexp.MustCompile(`\s+PPD ID:\s*\d+$`),
	regexp.MustCompile(`\s+TRANSACTION#:\s*\d+.*$`),
	regexp.MustCompile(`\s+#?\d{6,}$`),
	regexp.MustCompile(`\s+(?:XXXX|\.\.\.)?\d{4}$`),
	regexp.MustCompile(`\s+\d{2}/\d{2}(?:/\d{2,4})?$`),
}

var payeeSpaces = regexp.MustCompile(`\s+`)

// NormalizePayee reduces a raw statement description to the form
// category patterns match against: uppercased, whitespace collapsed,
// trailing reference noise stripped.
func NormalizePayee(description string) string {
	payee := strings.ToUpper(strings.TrimSpace(description))
	payee = payeeSpaces.ReplaceAllString(payee, " ")
	for _, re := range payeeStrip {
		payee = re.ReplaceAllString(payee, "")
	}
	return strings.TrimSpace(payee)
}
