package supervisor

import (
	"regexp"
	"strings"
)

// Phrase patterns mapping chat text to a tool. Matching is a substring scan
// over the normalized input; the parser is deterministic and has no model
// behind it.
var toolPatterns = []struct {
	tool     string
	patterns []string
}{
	{"jobs.list", []string{
		"liste jobs", "liste alle jobs", "zeige jobs", "zeig jobs",
		"jobs anzeigen", "welche jobs gibt es", "welche jobs",
		"alle jobs", "jobs liste", "zeige alle jobs",
		"list jobs", "show jobs", "show all jobs", "all jobs",
		"prikaži poslove", "lista poslova", "svi poslovi",
	}},
	{"jobs.get", []string{
		"job details", "zeige job", "job anzeigen", "details job",
		"show job", "job info", "get job",
		"detalji posla", "prikaži posao",
	}},
	{"jobs.create", []string{
		"erstelle job", "neuer job", "job erstellen", "neuen job",
		"create job", "new job", "add job",
		"kreiraj posao", "napravi posao", "novi posao",
	}},
	{"jobs.approve", []string{
		"genehmige job", "bestätige job", "job genehmigen", "approve job",
		"odobri posao",
	}},
	{"jobs.reject", []string{
		"ablehnen job", "job ablehnen", "verweigere job", "reject job",
		"odbij posao",
	}},
	{"jobs.update", []string{
		"aktualisiere job", "job aktualisieren", "update job", "edit job",
		"ažuriraj posao",
	}},
}

var (
	uuidRe       = regexp.MustCompile(`(?i)([a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12})`)
	looseIDRe    = regexp.MustCompile(`id[:\s]*([a-zA-Z0-9\-]+)`)
	quotedRe     = regexp.MustCompile(`["']([^"']+)["']`)
	afterColonRe = regexp.MustCompile(`(?:job|posao)[:\s]+(.+)`)
)

// Intent is the parsed outcome of one chat message.
type Intent struct {
	Tool        string
	Params      map[string]any
	Suggestions []string
}

// ParseIntent maps free text to a tool call. When no pattern matches it
// returns an empty tool plus example phrases in the detected language.
func ParseIntent(text, defaultLang string) Intent {
	normalized := normalizeText(text)
	for _, entry := range toolPatterns {
		for _, pattern := range entry.patterns {
			if !strings.Contains(normalized, pattern) {
				continue
			}
			return Intent{Tool: entry.tool, Params: extractParams(entry.tool, text, normalized)}
		}
	}
	lang := DetectLanguage(text, defaultLang)
	return Intent{Suggestions: suggestionsFor(lang)}
}

func extractParams(tool, text, normalized string) map[string]any {
	params := map[string]any{}
	switch tool {
	case "jobs.get", "jobs.approve", "jobs.reject", "jobs.update":
		if m := uuidRe.FindStringSubmatch(text); m != nil {
			params["job_id"] = strings.ToLower(m[1])
		} else if tool == "jobs.get" {
			if m := looseIDRe.FindStringSubmatch(normalized); m != nil {
				params["job_id"] = m[1]
			}
		}
	case "jobs.create":
		title := ""
		if m := quotedRe.FindStringSubmatch(text); m != nil {
			title = strings.TrimSpace(m[1])
		} else if m := afterColonRe.FindStringSubmatch(normalized); m != nil {
			title = strings.TrimSpace(m[1])
		}
		if title == "" {
			title = "Neuer Job"
		} else {
			title = titleCase(title)
		}
		params["title"] = title
	}
	return params
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		if len(r) > 0 {
			words[i] = strings.ToUpper(string(r[0])) + string(r[1:])
		}
	}
	return strings.Join(words, " ")
}
