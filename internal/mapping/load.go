package mapping

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// File is the layout of a YAML rules file.
type File struct {
	RuleSets []*RuleSet `yaml:"rule_sets"`
}

// LoadFile reads and validates rule sets from a YAML file.
func LoadFile(path string) ([]*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "mapping: read rules file %s", path)
	}
	return Parse(data)
}

// Parse decodes and validates rule sets from YAML.
func Parse(data []byte) ([]*RuleSet, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "mapping: parse rules")
	}

	seen := make(map[string]bool, len(f.RuleSets))
	for _, rs := range f.RuleSets {
		if rs == nil {
			return nil, eris.New("mapping: empty rule set entry")
		}
		if err := rs.Validate(); err != nil {
			return nil, err
		}
		if seen[rs.Name] {
			return nil, eris.Errorf("mapping: duplicate rule set %q", rs.Name)
		}
		seen[rs.Name] = true
	}
	return f.RuleSets, nil
}
