package hardware

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bizzlechizzle/aupat-sub000/internal/model"
)

// Rule maps device makes to a named category. A make matches when it
// contains one of the patterns, ignoring case.
type Rule struct {
	Name  string   `yaml:"name"`
	Makes []string `yaml:"makes"`
}

// ruleFile is the on-disk YAML layout of a rule table.
type ruleFile struct {
	Categories []Rule `yaml:"categories"`
}

// RuleTable is an ordered, immutable list of rules. The first matching rule wins.
type RuleTable struct {
	rules []Rule
}

// DefaultRules returns the built-in table.
func DefaultRules() *RuleTable {
	t, err := NewRuleTable([]Rule{
		{Name: "dslr", Makes: []string{"canon", "nikon", "sony", "fujifilm", "olympus", "pentax", "leica", "panasonic"}},
		{Name: "phone", Makes: []string{"apple", "samsung", "google", "huawei", "xiaomi", "oneplus", "motorola", "lg"}},
		{Name: "drone", Makes: []string{"dji", "parrot", "autel", "skydio"}},
		{Name: "action", Makes: []string{"gopro", "insta360"}},
	})
	if err != nil {
		panic(err)
	}
	return t
}

// NewRuleTable validates rules and returns a table holding a copy of them.
// Names must be unique, lowercase and distinct from the reserved other and
// unknown categories; every rule needs at least one non-empty pattern.
func NewRuleTable(rules []Rule) (*RuleTable, error) {
	seen := make(map[string]bool, len(rules))
	copied := make([]Rule, 0, len(rules))

	for i, r := range rules {
		if err := validateName(r.Name); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		if seen[r.Name] {
			return nil, fmt.Errorf("rule %d: duplicate category %q", i, r.Name)
		}
		seen[r.Name] = true

		if len(r.Makes) == 0 {
			return nil, fmt.Errorf("rule %q: no makes", r.Name)
		}
		makes := make([]string, len(r.Makes))
		for j, m := range r.Makes {
			m = strings.ToLower(strings.TrimSpace(m))
			if m == "" {
				return nil, fmt.Errorf("rule %q: empty make pattern", r.Name)
			}
			makes[j] = m
		}
		copied = append(copied, Rule{Name: r.Name, Makes: makes})
	}

	return &RuleTable{rules: copied}, nil
}

// ParseRules decodes a YAML rule table.
func ParseRules(data []byte) (*RuleTable, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing hardware rules: %w", err)
	}
	return NewRuleTable(f.Categories)
}

// LoadRules reads a YAML rule table from path.
func LoadRules(path string) (*RuleTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading hardware rules: %w", err)
	}
	return ParseRules(data)
}

// Match returns the category of the first rule whose pattern occurs in deviceMake.
func (t *RuleTable) Match(deviceMake string) (model.HardwareCategory, bool) {
	m := strings.ToLower(deviceMake)
	for _, r := range t.rules {
		for _, p := range r.Makes {
			if strings.Contains(m, p) {
				return model.HardwareCategory(r.Name), true
			}
		}
	}
	return "", false
}

// Categories lists the named categories in table order followed by other
// and unknown.
func (t *RuleTable) Categories() []model.HardwareCategory {
	cats := make([]model.HardwareCategory, 0, len(t.rules)+2)
	for _, r := range t.rules {
		cats = append(cats, model.HardwareCategory(r.Name))
	}
	return append(cats, model.CategoryOther, model.CategoryUnknown)
}

// Marshal renders the table in the YAML layout ParseRules reads.
func (t *RuleTable) Marshal() ([]byte, error) {
	return yaml.Marshal(ruleFile{Categories: t.rules})
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("category name is empty")
	}
	if name == string(model.CategoryOther) || name == string(model.CategoryUnknown) {
		return fmt.Errorf("category name %q is reserved", name)
	}
	for _, c := range name {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '_' && c != '-' {
			return fmt.Errorf("category name %q must be lowercase letters, digits, '-' or '_'", name)
		}
	}
	return nil
}
