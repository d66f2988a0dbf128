package normalize

import (
	"strings"

	"jobhunter/aggregator-service/internal/model"
)

// techTags are matched case-insensitively against title + description.
var techTags = []string{
	// Programming languages
	"python", "javascript", "typescript", "java", "php", "ruby", "go", "rust",
	"c++", "c#", "swift", "kotlin", "scala",
	// Frontend
	"react", "angular", "vue.js", "next.js", "svelte", "tailwindcss",
	// Backend / frameworks
	"node.js", "django", "flask", "fastapi", "spring", "laravel", "express",
	"rails", "asp.net", ".net",
	// Data / ML
	"machine learning", "data science", "deep learning", "nlp", "tensorflow",
	"pytorch", "pandas", "spark",
	// Databases
	"sql", "postgresql", "mysql", "mongodb", "redis", "elasticsearch",
	"oracle", "sqlite",
	// Cloud & DevOps
	"docker", "kubernetes", "aws", "azure", "gcp", "terraform", "ansible",
	"ci/cd", "jenkins", "github actions",
	// Tools & platforms
	"git", "linux", "jira", "figma", "graphql", "rest api",
	// Roles / specialties
	"devops", "sre", "qa", "cybersecurity", "blockchain", "product manager",
	"scrum master",
}

// ExtractTags merges source-provided tags with technologies recognized in
// the text, de-duplicated and capped at model.MaxTags. Source tags come
// first so they survive the cap.
func ExtractTags(title, description string, sourceTags []string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, model.MaxTags)

	add := func(tag string) {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] || len(out) >= model.MaxTags {
			return
		}
		seen[tag] = true
		out = append(out, tag)
	}

	for _, t := range sourceTags {
		add(t)
	}
	combined := strings.ToLower(title + " " + description)
	for _, t := range techTags {
		if strings.Contains(combined, t) {
			add(t)
		}
	}
	return out
}
