package service

import (
	"strings"

	"github.com/google/uuid"
)

// Action modes. Gemini actions run the prompt through the LLM; transcript
// modes render the cached transcript directly.
const (
	ModeGemini               = "gemini"
	ModeTranscriptTimestamps = "transcript_timestamps"
	ModeTranscriptText       = "transcript_text"
)

// Built-in action IDs. These three are always present in the sanitised list.
const (
	DefaultActionID              = "default-summary"
	TranscriptTimestampsActionID = "view-transcript"
	TranscriptTextActionID       = "view-transcript-text"
)

const defaultActionPrompt = `{{language_instruction}}
Summarize the following video transcript into concise key points, then provide a bullet list of highlights annotated with fitting emojis.
Enforce standard numeral formatting using digits 0-9 regardless of language.

Transcript:
---
{{transcript}}
---`

const transcriptTimestampsActionPrompt = `Raw transcript from Supadata with timestamps (no Gemini processing).`

const transcriptTextActionPrompt = `Raw transcript text only from Supadata (no Gemini processing).`

// Action is one panel button: a label plus either a Gemini prompt template or
// a transcript rendering mode.
type Action struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Prompt string `json:"prompt"`
	Mode   string `json:"mode"`
}

func defaultAction() Action {
	return Action{
		ID:     DefaultActionID,
		Label:  "Summarize",
		Prompt: strings.TrimSpace(defaultActionPrompt),
		Mode:   ModeGemini,
	}
}

func transcriptTimestampsAction() Action {
	return Action{
		ID:     TranscriptTimestampsActionID,
		Label:  "Transcript + Time",
		Prompt: strings.TrimSpace(transcriptTimestampsActionPrompt),
		Mode:   ModeTranscriptTimestamps,
	}
}

func transcriptTextAction() Action {
	return Action{
		ID:     TranscriptTextActionID,
		Label:  "Transcript Text",
		Prompt: strings.TrimSpace(transcriptTextActionPrompt),
		Mode:   ModeTranscriptText,
	}
}

func normalizeActionMode(mode string) string {
	switch mode {
	case "transcript", ModeTranscriptTimestamps:
		return ModeTranscriptTimestamps
	case ModeTranscriptText:
		return ModeTranscriptText
	default:
		return ModeGemini
	}
}

func isTranscriptMode(mode string) bool {
	return mode == ModeTranscriptTimestamps || mode == ModeTranscriptText
}

func transcriptPromptForMode(mode string) string {
	if mode == ModeTranscriptText {
		return strings.TrimSpace(transcriptTextActionPrompt)
	}
	return strings.TrimSpace(transcriptTimestampsActionPrompt)
}

// EnsureActions sanitises a stored action list and guarantees the three
// built-ins are present. Entries with a blank label are dropped, gemini
// entries without a prompt are dropped, transcript entries without a prompt
// get their mode's default heading, and missing or duplicate IDs are
// regenerated. The second return reports whether the list was changed.
func EnsureActions(actions []Action) ([]Action, bool) {
	cleaned := make([]Action, 0, len(actions)+3)
	seenIDs := make(map[string]bool)
	mutated := false

	for _, action := range actions {
		id := strings.TrimSpace(action.ID)
		label := strings.TrimSpace(action.Label)
		prompt := strings.TrimSpace(action.Prompt)
		mode := normalizeActionMode(action.Mode)

		if label == "" {
			mutated = true
			continue
		}
		if id == "" {
			id = mode + "-action-" + uuid.NewString()
			mutated = true
		}
		if seenIDs[id] {
			id = id + "-" + uuid.NewString()[:4]
			mutated = true
		}
		seenIDs[id] = true

		if mode == ModeGemini && prompt == "" {
			mutated = true
			continue
		}
		if isTranscriptMode(mode) && prompt == "" {
			prompt = transcriptPromptForMode(mode)
			mutated = true
		}

		cleaned = append(cleaned, Action{ID: id, Label: label, Prompt: prompt, Mode: mode})
	}

	if len(cleaned) == 0 {
		return []Action{defaultAction(), transcriptTimestampsAction(), transcriptTextAction()}, true
	}

	if !containsID(cleaned, DefaultActionID) {
		cleaned = insertAt(cleaned, 0, defaultAction())
		mutated = true
	}
	if !containsID(cleaned, TranscriptTimestampsActionID) {
		cleaned = insertAt(cleaned, 1, transcriptTimestampsAction())
		mutated = true
	}
	if !containsID(cleaned, TranscriptTextActionID) {
		cleaned = insertAt(cleaned, 2, transcriptTextAction())
		mutated = true
	}

	return cleaned, mutated || len(cleaned) != len(actions)
}

func containsID(actions []Action, id string) bool {
	for _, action := range actions {
		if action.ID == id {
			return true
		}
	}
	return false
}

func insertAt(actions []Action, index int, action Action) []Action {
	if index >= len(actions) {
		return append(actions, action)
	}
	actions = append(actions, Action{})
	copy(actions[index+1:], actions[index:])
	actions[index] = action
	return actions
}

func findAction(actions []Action, id string) (Action, bool) {
	for _, action := range actions {
		if action.ID == id {
			return action, true
		}
	}
	return Action{}, false
}
