package extraction

import (
	"sort"
	"strings"
)

// DefaultTagRules maps tags to keywords that indicate them.
var DefaultTagRules = map[string][]string{
	"golang":     {".go", "go mod", "go build", "go test", "golang", "goroutine"},
	"python":     {".py", "pip install", "pytest", "python", "django", "flask"},
	"typescript": {".ts", ".tsx", "typescript"},
	"javascript": {".js", ".jsx", "npm", "node", "javascript"},
	"rust":       {".rs", "cargo", "rustc"},
	"java":       {".java", "maven", "gradle"},

	"kubernetes": {"kubectl", "k8s", "helm", "kubernetes"},
	"docker":     {"dockerfile", "docker-compose", "docker"},
	"terraform":  {".tf", "terraform"},

	"debugging":   {"bug", "error", "broken", "failing", "debug", "stack trace"},
	"testing":     {"test", "coverage", "mock", "assert"},
	"refactoring": {"refactor", "cleanup", "rename", "simplify"},
	"security":    {"auth", "secret", "credential", "permission", "encrypt", "security", "token"},
	"performance": {"optimize", "slow", "latency", "cache", "performance"},

	"api":      {"api", "endpoint", "rest", "grpc", "graphql"},
	"database": {"database", "sql", "postgres", "mysql", "sqlite", "redis"},
	"frontend": {"frontend", "react", "vue", "css"},
}

// KeywordTagger implements TagExtractor with substring rules.
type KeywordTagger struct {
	rules map[string][]string
}

var _ TagExtractor = (*KeywordTagger)(nil)

// NewKeywordTagger returns a tagger for rules, or DefaultTagRules when empty.
func NewKeywordTagger(rules map[string][]string) *KeywordTagger {
	if len(rules) == 0 {
		rules = DefaultTagRules
	}
	return &KeywordTagger{rules: rules}
}

// ExtractTags returns the sorted tags whose keywords occur in content.
func (t *KeywordTagger) ExtractTags(content string) []string {
	content = strings.ToLower(content)
	var tags []string
	for tag, keywords := range t.rules {
		for _, kw := range keywords {
			if strings.Contains(content, strings.ToLower(kw)) {
				tags = append(tags, tag)
				break
			}
		}
	}
	sort.Strings(tags)
	return tags
}
