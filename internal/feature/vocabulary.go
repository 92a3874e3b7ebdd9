package feature

import (
	"sort"
	"strings"

	"jobmatch-engine/internal/normalize"
)

// DefaultSkills is the curated technology vocabulary.
var DefaultSkills = []string{
	"Python", "JavaScript", "Java", "C++", "C#", "Ruby", "PHP", "Swift", "Kotlin", "Go",
	"Rust", "TypeScript", "React", "Angular", "Vue", "Node.js", "Django", "Flask", "Spring",
	"Express", "MongoDB", "PostgreSQL", "MySQL", "Redis", "AWS", "Azure", "GCP", "Docker",
	"Kubernetes", "Jenkins", "Git", "Agile", "Scrum", "Machine Learning", "Data Science",
	"Artificial Intelligence", "DevOps", "CI/CD",
	"Terraform", "Linux", "SQL", "GraphQL", "Kafka", "Golang", ".NET",
}

// aliases fold alternate spellings onto one canonical skill.
var aliases = map[string]string{
	"golang":   "go",
	"postgres": "postgresql",
	"k8s":      "kubernetes",
	"nodejs":   "node.js",
	"dotnet":   ".net",
	"js":       "javascript",
	"ts":       "typescript",
	"ml":       "machine learning",
	"ai":       "artificial intelligence",
}

type skillPhrase struct {
	name   string
	tokens []string
}

// Vocabulary matches skill phrases against normalized token sequences.
type Vocabulary struct {
	phrases []skillPhrase
	maxLen  int
}

// NewVocabulary normalizes every skill name through n so that matching sees
// the same token forms as documents. Aliases map onto their canonical entry
// when it is part of names.
func NewVocabulary(n *normalize.Normalizer, names []string) *Vocabulary {
	if n == nil {
		n = normalize.Default()
	}
	canon := make(map[string]string, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		canon[strings.ToLower(name)] = name
	}

	v := &Vocabulary{}
	add := func(display, phrase string) {
		toks := n.Normalize(phrase)
		if len(toks) == 0 {
			return
		}
		v.phrases = append(v.phrases, skillPhrase{name: display, tokens: toks})
		if len(toks) > v.maxLen {
			v.maxLen = len(toks)
		}
	}
	for key, display := range canon {
		if target, ok := aliases[key]; ok {
			if d, ok := canon[target]; ok {
				display = d
			}
		}
		add(display, key)
	}
	for alias, target := range aliases {
		if _, ok := canon[alias]; ok {
			continue
		}
		if display, ok := canon[target]; ok {
			add(display, alias)
		}
	}
	// Longest phrases first, then lexical, so matching is order-independent.
	sort.Slice(v.phrases, func(i, j int) bool {
		a, b := v.phrases[i], v.phrases[j]
		if len(a.tokens) != len(b.tokens) {
			return len(a.tokens) > len(b.tokens)
		}
		ja, jb := strings.Join(a.tokens, " "), strings.Join(b.tokens, " ")
		if ja != jb {
			return ja < jb
		}
		return a.name < b.name
	})
	return v
}

// Match returns the sorted, de-duplicated canonical names of skills present
// in tokens. At each position the longest phrase wins.
func (v *Vocabulary) Match(tokens []string) []string {
	if v == nil || len(tokens) == 0 {
		return []string{}
	}
	found := map[string]bool{}
	for i := 0; i < len(tokens); {
		step := 1
		for _, p := range v.phrases {
			if i+len(p.tokens) > len(tokens) {
				continue
			}
			if equalAt(tokens, i, p.tokens) {
				found[p.name] = true
				step = len(p.tokens)
				break
			}
		}
		i += step
	}
	return sortedKeys(found)
}

// Canonical maps a free-form skill name to its vocabulary entry.
func (v *Vocabulary) Canonical(n *normalize.Normalizer, name string) (string, bool) {
	if n == nil {
		n = normalize.Default()
	}
	got := v.Match(n.Normalize(name))
	if len(got) != 1 {
		return "", false
	}
	return got[0], true
}

// Size is the number of distinct canonical skills.
func (v *Vocabulary) Size() int {
	seen := map[string]bool{}
	for _, p := range v.phrases {
		seen[p.name] = true
	}
	return len(seen)
}

func equalAt(toks []string, i int, phrase []string) bool {
	for j, w := range phrase {
		if toks[i+j] != w {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
