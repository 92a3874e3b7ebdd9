package ingest

import (
	"strings"

	"jobmatch-engine/internal/config"
	"jobmatch-engine/internal/domain"
)

// Rule adds Tag to a job whose title or description contains any of Any
// (case-insensitive substring).
type Rule struct {
	Tag string
	Any []string
}

// SkillFunc lists the vocabulary skills found in text.
type SkillFunc func(text string) []string

// Tagger derives a job's tags from the provider's own tags, the configured
// keyword rules and the skill vocabulary.
type Tagger struct {
	rules  []Rule
	skills SkillFunc
}

func NewTagger(rules []Rule, skills SkillFunc) *Tagger {
	kept := make([]Rule, 0, len(rules))
	for _, r := range rules {
		tag := strings.TrimSpace(r.Tag)
		if tag == "" {
			continue
		}
		var needles []string
		for _, n := range r.Any {
			if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
				needles = append(needles, n)
			}
		}
		if len(needles) > 0 {
			kept = append(kept, Rule{Tag: tag, Any: needles})
		}
	}
	return &Tagger{rules: kept, skills: skills}
}

// Tag returns the normalized tag set of j. descPlain is the markup-free
// description.
func (t *Tagger) Tag(j domain.Job, descPlain string) []string {
	tags := append([]string(nil), j.Tags...)
	if t == nil {
		return domain.NormalizeTags(tags)
	}

	text := strings.ToLower(j.Title + " " + descPlain)
	for _, r := range t.rules {
		for _, n := range r.Any {
			if strings.Contains(text, n) {
				tags = append(tags, r.Tag)
				break
			}
		}
	}
	if t.skills != nil {
		tags = append(tags, t.skills(j.Title+"\n"+descPlain)...)
	}
	return domain.NormalizeTags(tags)
}

// ConfigRules converts the scoring.tag_rules section.
func ConfigRules(rs []config.Rule) []Rule {
	out := make([]Rule, 0, len(rs))
	for _, r := range rs {
		out = append(out, Rule{Tag: r.Tag, Any: r.Any})
	}
	return out
}
