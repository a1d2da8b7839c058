package tags

import "strings"

// DefaultProvider holds the tags appended to every emission.
// The set is computed once from configuration and never changes.
type DefaultProvider struct {
	tags []string
}

// NewDefaultProvider builds the default tag set from a comma separated tag
// string and an environment label. Pieces are kept verbatim, whitespace included.
// The environment tag uses "env=" rather than "env:" for compatibility with
// dashboards built on the older format.
func NewDefaultProvider(eventTags, environment string) *DefaultProvider {
	tags := []string{}
	if eventTags != "" {
		tags = append(tags, strings.Split(eventTags, ",")...)
	}
	if environment != "" {
		tags = append(tags, "env="+environment)
	}
	return &DefaultProvider{tags: tags}
}

// Tags returns a copy of the default tags
func (p *DefaultProvider) Tags() []string {
	if p == nil {
		return []string{}
	}
	out := make([]string, len(p.tags))
	copy(out, p.tags)
	return out
}
