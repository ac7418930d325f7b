package supervisor

import (
	"regexp"
	"strings"
)

// Supported reply languages. Detection is keyword scoring over the input;
// ties and no-hits fall back to the configured default.
const (
	LangGerman  = "de"
	LangBosnian = "bs"
	LangEnglish = "en"
)

var langPatterns = map[string][]string{
	LangGerman: {
		"liste", "zeige", "zeig", "erstelle", "neu", "genehmige", "ablehnen",
		"bestätige", "hilfe", "was", "wie", "alle", "anzeigen",
		"welche", "gibt", "bitte", "danke", "aktualisiere",
	},
	LangBosnian: {
		"prikaži", "napravi", "odobri", "odbij", "pomoc", "šta", "kako",
		"posao", "poslovi", "lista", "detalji", "kreiraj", "svi", "molim",
	},
	LangEnglish: {
		"list", "show", "create", "approve", "reject", "help", "what", "how",
		"job", "jobs", "all", "please", "details", "status", "update", "new",
	},
}

var (
	trailingPunct = regexp.MustCompile(`[.!?]+$`)
	multiSpace    = regexp.MustCompile(`\s+`)
)

func normalizeText(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	text = trailingPunct.ReplaceAllString(text, "")
	return multiSpace.ReplaceAllString(text, " ")
}

// DetectLanguage scores the text against per-language keyword lists. The
// fallback applies when nothing matches.
func DetectLanguage(text, fallback string) string {
	if fallback == "" {
		fallback = LangGerman
	}
	normalized := normalizeText(text)
	best, bestScore := fallback, 0
	for _, lang := range []string{LangGerman, LangBosnian, LangEnglish} {
		score := 0
		for _, p := range langPatterns[lang] {
			if strings.Contains(normalized, p) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = lang, score
		}
	}
	return best
}

type phrases struct {
	Understood         string
	ConfirmQuestion    string
	ExecuteInstruction string
	Success            string
	Unclear            string
	SuggestionsPrefix  string
	TypeRead           string
	TypeWrite          string
}

var translations = map[string]phrases{
	LangGerman: {
		Understood:         "Verstanden",
		ConfirmQuestion:    "Soll ich fortfahren?",
		ExecuteInstruction: "Schreibe: EXECUTE %s",
		Success:            "Erfolgreich ausgeführt",
		Unclear:            "Ich habe nicht verstanden was du möchtest.",
		SuggestionsPrefix:  "Versuche z.B.:",
		TypeRead:           "LESEN",
		TypeWrite:          "SCHREIBEN",
	},
	LangBosnian: {
		Understood:         "Razumijem",
		ConfirmQuestion:    "Da li da nastavim?",
		ExecuteInstruction: "Napiši: EXECUTE %s",
		Success:            "Uspješno izvršeno",
		Unclear:            "Nisam razumio šta želiš.",
		SuggestionsPrefix:  "Pokušaj npr.:",
		TypeRead:           "ČITANJE",
		TypeWrite:          "PISANJE",
	},
	LangEnglish: {
		Understood:         "Understood",
		ConfirmQuestion:    "Should I proceed?",
		ExecuteInstruction: "Type: EXECUTE %s",
		Success:            "Successfully executed",
		Unclear:            "I didn't understand what you want.",
		SuggestionsPrefix:  "Try e.g.:",
		TypeRead:           "READ",
		TypeWrite:          "WRITE",
	},
}

func phrasesFor(lang string) phrases {
	if p, ok := translations[lang]; ok {
		return p
	}
	return translations[LangGerman]
}

var suggestions = map[string][]string{
	LangGerman: {
		`"Liste alle Jobs"`,
		`"Erstelle Job: <Titel>"`,
		`"Genehmige Job <ID>"`,
	},
	LangBosnian: {
		`"Prikaži poslove"`,
		`"Kreiraj posao: <Naslov>"`,
		`"Odobri posao <ID>"`,
	},
	LangEnglish: {
		`"List jobs"`,
		`"Create job: <Title>"`,
		`"Approve job <ID>"`,
	},
}

func suggestionsFor(lang string) []string {
	if s, ok := suggestions[lang]; ok {
		return s
	}
	return suggestions[LangGerman]
}

var toolDescriptions = map[string]map[string]string{
	"jobs.list":    {LangGerman: "Alle Jobs auflisten", LangBosnian: "Prikaži sve poslove", LangEnglish: "List all jobs"},
	"jobs.get":     {LangGerman: "Job-Details anzeigen", LangBosnian: "Prikaži detalje posla", LangEnglish: "Show job details"},
	"jobs.create":  {LangGerman: "Neuen Job erstellen", LangBosnian: "Kreiraj novi posao", LangEnglish: "Create a new job"},
	"jobs.approve": {LangGerman: "Job genehmigen", LangBosnian: "Odobri posao", LangEnglish: "Approve job"},
	"jobs.reject":  {LangGerman: "Job ablehnen", LangBosnian: "Odbij posao", LangEnglish: "Reject job"},
	"jobs.update":  {LangGerman: "Job aktualisieren", LangBosnian: "Ažuriraj posao", LangEnglish: "Update job"},
}

func describeTool(tool, lang string) string {
	if desc, ok := toolDescriptions[tool][lang]; ok {
		return desc
	}
	return tool
}
