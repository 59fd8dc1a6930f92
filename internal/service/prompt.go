package service

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/mohamed-oubenma/smarTube/pkg/log"
)

// MaxTranscriptLength caps the transcript portion of a prompt.
const MaxTranscriptLength = 300000

// PromptVars holds the values substituted into an action's prompt template.
type PromptVars struct {
	Transcript          string
	LanguageInstruction string
	VideoURL            string
}

// BuildLanguageInstruction renders the response-language directive for a
// summary-language setting. "auto" defers to the transcript's own language;
// any parseable BCP 47 tag is spelled out by its English name.
func BuildLanguageInstruction(languageSetting string) string {
	setting := strings.TrimSpace(languageSetting)
	if setting == "" || setting == "auto" {
		return "Generate the response in the primary language used within the provided transcript."
	}

	targetLanguage := "English"
	if tag, err := language.Parse(setting); err == nil {
		if name := display.English.Languages().Name(tag); name != "" {
			targetLanguage = name
		}
	}
	return fmt.Sprintf("Generate the response **in %s**.", targetLanguage)
}

// TruncateTranscript enforces the prompt-size cap. The cut backs off to a
// rune boundary so the prompt stays valid UTF-8.
func TruncateTranscript(text string) string {
	if len(text) <= MaxTranscriptLength {
		return text
	}
	log.Warn("transcript length (%d) exceeds limit (%d), truncating", len(text), MaxTranscriptLength)

	cut := MaxTranscriptLength
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// BuildPromptFromTemplate fills the {{language_instruction}}, {{transcript}}
// and {{video_url}} placeholders. Values whose placeholder is absent from the
// template are appended so no input is silently dropped.
func BuildPromptFromTemplate(template string, vars PromptVars) string {
	baseTemplate := template
	if strings.TrimSpace(baseTemplate) == "" {
		baseTemplate = defaultAction().Prompt
	}

	finalPrompt := baseTemplate
	finalPrompt = strings.ReplaceAll(finalPrompt, "{{language_instruction}}", vars.LanguageInstruction)
	finalPrompt = strings.ReplaceAll(finalPrompt, "{{transcript}}", vars.Transcript)
	finalPrompt = strings.ReplaceAll(finalPrompt, "{{video_url}}", vars.VideoURL)

	if vars.LanguageInstruction != "" && !strings.Contains(baseTemplate, "{{language_instruction}}") {
		finalPrompt = vars.LanguageInstruction + "\n\n" + finalPrompt
	}
	if vars.Transcript != "" && !strings.Contains(baseTemplate, "{{transcript}}") {
		finalPrompt = finalPrompt + "\n\nTranscript:\n---\n" + vars.Transcript + "\n---"
	}
	if vars.VideoURL != "" && !strings.Contains(baseTemplate, "{{video_url}}") {
		finalPrompt = finalPrompt + "\n\nVideo URL: " + vars.VideoURL
	}

	return finalPrompt
}

// buildQuestionPrompt grounds a user question in the transcript and pins the
// timestamp citation format the panel links on.
func buildQuestionPrompt(transcriptText, question, languageInstruction string) string {
	promptPrefix := ""
	if languageInstruction != "" {
		promptPrefix = languageInstruction + "\n\n"
	}

	return promptPrefix + `Based **only** on the following video transcript, answer the user's question. If the answer cannot be found in the transcript, say so.
Do not use any external knowledge.

Formatting rules:
- For time-related questions (for example: when, what time, or at which point), include one or more exact transcript timestamps.
- Format each timestamp strictly as [MM:SS] or [HH:MM:SS].
- Prefer citing the nearest relevant transcript line(s).

Transcript:
---
` + TruncateTranscript(transcriptText) + `
---

User Question: ` + question + `

Answer:`
}
