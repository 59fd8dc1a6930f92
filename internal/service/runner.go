package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mohamed-oubenma/smarTube/internal/gemini"
	"github.com/mohamed-oubenma/smarTube/internal/transcript"
	"github.com/mohamed-oubenma/smarTube/pkg/log"
)

const customActionsSettingName = "custom_actions"

// TranscriptSource acquires a transcript for a video URL, usually via the
// two-tier cache.
type TranscriptSource interface {
	GetOrFetch(ctx context.Context, videoURL string, forceRefresh bool) (*transcript.Data, error)
}

// LLM generates text from a single-turn prompt.
type LLM interface {
	GenerateContent(ctx context.Context, prompt, secret string, opts *gemini.GenerateOptions) (string, error)
}

// SettingsStore persists key/value settings, here the custom action list.
type SettingsStore interface {
	Setting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
}

// ActionResult is a finished action run: rendered content plus the label the
// panel shows on the result card.
type ActionResult struct {
	Content string `json:"content"`
	Label   string `json:"label"`
}

// Runner executes panel actions and Q&A against the cached transcript.
type Runner struct {
	transcripts TranscriptSource
	llm         LLM
	settings    SettingsStore

	geminiSecret    string
	summaryLanguage string
}

// Option configures a Runner.
type Option func(*Runner)

// WithGeminiSecret sets the Gemini API credential used by gemini-mode actions.
func WithGeminiSecret(secret string) Option {
	return func(r *Runner) { r.geminiSecret = strings.TrimSpace(secret) }
}

// WithSummaryLanguage sets the response-language setting ("auto" or a BCP 47
// code such as "fr").
func WithSummaryLanguage(lang string) Option {
	return func(r *Runner) { r.summaryLanguage = lang }
}

func NewRunner(transcripts TranscriptSource, llm LLM, settings SettingsStore, opts ...Option) *Runner {
	r := &Runner{
		transcripts:     transcripts,
		llm:             llm,
		settings:        settings,
		summaryLanguage: "auto",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Actions returns the sanitised action list. When sanitisation changed the
// stored list the cleaned version is written back, best effort.
func (r *Runner) Actions(ctx context.Context) ([]Action, error) {
	var stored []Action
	if r.settings != nil {
		raw, ok, err := r.settings.Setting(ctx, customActionsSettingName)
		if err != nil {
			return nil, fmt.Errorf("load custom actions: %w", err)
		}
		if ok {
			if err := json.Unmarshal([]byte(raw), &stored); err != nil {
				log.Warn("Ignoring malformed custom action list: %v", err)
				stored = nil
			}
		}
	}

	actions, mutated := EnsureActions(stored)
	if mutated && r.settings != nil {
		if err := r.persistActions(ctx, actions); err != nil {
			log.Warn("Failed to persist sanitised action list: %v", err)
		}
	}
	return actions, nil
}

// SaveActions sanitises and persists a user-edited action list, returning the
// stored form.
func (r *Runner) SaveActions(ctx context.Context, actions []Action) ([]Action, error) {
	cleaned, _ := EnsureActions(actions)
	if r.settings == nil {
		return cleaned, nil
	}
	if err := r.persistActions(ctx, cleaned); err != nil {
		return nil, err
	}
	return cleaned, nil
}

func (r *Runner) persistActions(ctx context.Context, actions []Action) error {
	raw, err := json.Marshal(actions)
	if err != nil {
		return err
	}
	return r.settings.SetSetting(ctx, customActionsSettingName, string(raw))
}

// RunAction executes one action against the video's transcript. Unknown
// action IDs fall back to the default summary action. labelOverride, when
// non-empty, replaces the action's label in the result.
func (r *Runner) RunAction(ctx context.Context, actionID, videoURL, labelOverride string) (ActionResult, error) {
	actions, err := r.Actions(ctx)
	if err != nil {
		return ActionResult{}, err
	}

	action, found := findAction(actions, actionID)
	if !found {
		log.Warn("Action %q not found, falling back to default action", actionID)
		if action, found = findAction(actions, DefaultActionID); !found {
			action = actions[0]
		}
	}

	actionLabel := action.Label
	if labelOverride != "" {
		actionLabel = labelOverride
	}
	log.Info("Executing action %q (mode: %s)", actionLabel, action.Mode)

	transcriptData, err := r.transcripts.GetOrFetch(ctx, videoURL, false)
	if err != nil {
		return ActionResult{}, err
	}
	transcriptText := transcriptData.TextForPrompt()
	if strings.TrimSpace(transcriptText) == "" {
		return ActionResult{}, ErrEmptyTranscript
	}

	switch action.Mode {
	case ModeTranscriptTimestamps:
		return ActionResult{
			Content: renderTimestampedTranscript(action, transcriptData, transcriptText),
			Label:   actionLabel,
		}, nil
	case ModeTranscriptText:
		return ActionResult{
			Content: renderPlainTranscript(action, transcriptData, transcriptText),
			Label:   actionLabel,
		}, nil
	}

	if r.geminiSecret == "" {
		return ActionResult{}, ErrAPIKeysMissing
	}

	prompt := BuildPromptFromTemplate(action.Prompt, PromptVars{
		Transcript:          TruncateTranscript(transcriptText),
		LanguageInstruction: BuildLanguageInstruction(r.summaryLanguage),
		VideoURL:            videoURL,
	})
	content, err := r.llm.GenerateContent(ctx, prompt, r.geminiSecret, nil)
	if err != nil {
		return ActionResult{}, err
	}
	return ActionResult{Content: content, Label: actionLabel}, nil
}

// AskQuestion answers a user question grounded in the video's transcript.
func (r *Runner) AskQuestion(ctx context.Context, videoURL, question string) (string, error) {
	if r.geminiSecret == "" {
		return "", ErrAPIKeysMissing
	}

	transcriptData, err := r.transcripts.GetOrFetch(ctx, videoURL, false)
	if err != nil {
		return "", err
	}
	transcriptText := transcriptData.TextForPrompt()
	if strings.TrimSpace(transcriptText) == "" {
		return "", fmt.Errorf("cannot answer question: %w", ErrEmptyTranscript)
	}

	prompt := buildQuestionPrompt(transcriptText, question, BuildLanguageInstruction(r.summaryLanguage))
	return r.llm.GenerateContent(ctx, prompt, r.geminiSecret, &gemini.GenerateOptions{
		Temperature:     0.4,
		MaxOutputTokens: 4096,
	})
}

// renderTimestampedTranscript builds the markdown bullet list view, falling
// back to the flat text when the payload had no chunks.
func renderTimestampedTranscript(action Action, data *transcript.Data, fallback string) string {
	heading := strings.TrimSpace(action.Prompt)
	if heading == "" {
		heading = strings.TrimSpace(transcriptTimestampsActionPrompt)
	}
	body := transcript.TimestampMarkdown(data.Chunks)
	if body == "" {
		body = fallback
	}
	return heading + "\n\n" + body
}

// renderPlainTranscript builds the fenced plain-text view.
func renderPlainTranscript(action Action, data *transcript.Data, fallback string) string {
	heading := strings.TrimSpace(action.Prompt)
	if heading == "" {
		heading = strings.TrimSpace(transcriptTextActionPrompt)
	}

	var body string
	if len(data.Chunks) > 0 {
		lines := make([]string, 0, len(data.Chunks))
		for _, chunk := range data.Chunks {
			lines = append(lines, chunk.Text)
		}
		body = strings.Join(lines, "\n")
	} else if data.PlainText != "" {
		body = data.PlainText
	} else {
		body = fallback
	}
	return heading + "\n\n```\n" + body + "\n```"
}
