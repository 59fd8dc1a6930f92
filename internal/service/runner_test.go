package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamed-oubenma/smarTube/internal/gemini"
	"github.com/mohamed-oubenma/smarTube/internal/supadata"
	"github.com/mohamed-oubenma/smarTube/internal/transcript"
)

type fakeTranscripts struct {
	data  *transcript.Data
	err   error
	calls int
	url   string
}

func (f *fakeTranscripts) GetOrFetch(ctx context.Context, videoURL string, forceRefresh bool) (*transcript.Data, error) {
	f.calls++
	f.url = videoURL
	return f.data, f.err
}

type fakeLLM struct {
	response string
	err      error
	prompt   string
	secret   string
	opts     *gemini.GenerateOptions
	calls    int
}

func (f *fakeLLM) GenerateContent(ctx context.Context, prompt, secret string, opts *gemini.GenerateOptions) (string, error) {
	f.calls++
	f.prompt = prompt
	f.secret = secret
	f.opts = opts
	return f.response, f.err
}

type memSettings struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemSettings() *memSettings {
	return &memSettings{values: make(map[string]string)}
}

func (m *memSettings) Setting(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.values[key]
	return value, ok, nil
}

func (m *memSettings) SetSetting(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func sampleTranscript() *transcript.Data {
	return &transcript.Data{
		Chunks: []transcript.Chunk{
			{Text: "hello", OffsetMs: 0},
			{Text: "world", OffsetMs: 65000},
		},
		TimestampedText: "[00:00] hello\n[01:05] world",
		PlainText:       "hello world",
		Lang:            "en",
	}
}

func TestRunAction_GeminiMode(t *testing.T) {
	t.Parallel()

	transcripts := &fakeTranscripts{data: sampleTranscript()}
	llm := &fakeLLM{response: "the summary"}
	runner := NewRunner(transcripts, llm, newMemSettings(), WithGeminiSecret("sk-gem"))

	result, err := runner.RunAction(context.Background(), DefaultActionID, "https://youtu.be/abc", "")
	require.NoError(t, err)
	assert.Equal(t, "the summary", result.Content)
	assert.Equal(t, "Summarize", result.Label)

	assert.Equal(t, "https://youtu.be/abc", transcripts.url)
	assert.Equal(t, "sk-gem", llm.secret)
	assert.Nil(t, llm.opts)
	assert.Contains(t, llm.prompt, "[00:00] hello")
	assert.Contains(t, llm.prompt, "primary language used within the provided transcript")
	assert.NotContains(t, llm.prompt, "{{transcript}}")
}

func TestRunAction_LabelOverride(t *testing.T) {
	t.Parallel()

	runner := NewRunner(&fakeTranscripts{data: sampleTranscript()}, &fakeLLM{response: "ok"}, newMemSettings(), WithGeminiSecret("sk"))

	result, err := runner.RunAction(context.Background(), DefaultActionID, "https://youtu.be/abc", "Quick Summary")
	require.NoError(t, err)
	assert.Equal(t, "Quick Summary", result.Label)
}

func TestRunAction_UnknownIDFallsBackToDefault(t *testing.T) {
	t.Parallel()

	llm := &fakeLLM{response: "ok"}
	runner := NewRunner(&fakeTranscripts{data: sampleTranscript()}, llm, newMemSettings(), WithGeminiSecret("sk"))

	result, err := runner.RunAction(context.Background(), "does-not-exist", "https://youtu.be/abc", "")
	require.NoError(t, err)
	assert.Equal(t, "Summarize", result.Label)
	assert.Equal(t, 1, llm.calls)
}

func TestRunAction_TimestampMode(t *testing.T) {
	t.Parallel()

	llm := &fakeLLM{}
	runner := NewRunner(&fakeTranscripts{data: sampleTranscript()}, llm, newMemSettings())

	result, err := runner.RunAction(context.Background(), TranscriptTimestampsActionID, "https://youtu.be/abc", "")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(result.Content, transcriptTimestampsActionPrompt+"\n\n"))
	assert.Contains(t, result.Content, "- [00:00] hello")
	assert.Contains(t, result.Content, "- [01:05] world")
	assert.Zero(t, llm.calls, "transcript modes never call the LLM")
}

func TestRunAction_TimestampModeWorksWithoutGeminiKey(t *testing.T) {
	t.Parallel()

	runner := NewRunner(&fakeTranscripts{data: sampleTranscript()}, &fakeLLM{}, newMemSettings())

	_, err := runner.RunAction(context.Background(), TranscriptTimestampsActionID, "https://youtu.be/abc", "")
	assert.NoError(t, err)
}

func TestRunAction_PlainTextMode(t *testing.T) {
	t.Parallel()

	runner := NewRunner(&fakeTranscripts{data: sampleTranscript()}, &fakeLLM{}, newMemSettings())

	result, err := runner.RunAction(context.Background(), TranscriptTextActionID, "https://youtu.be/abc", "")
	require.NoError(t, err)
	assert.Equal(t, transcriptTextActionPrompt+"\n\n```\nhello\nworld\n```", result.Content)
}

func TestRunAction_PlainTextModeFallsBackToPlainText(t *testing.T) {
	t.Parallel()

	data := &transcript.Data{PlainText: "flat text", Lang: "en"}
	runner := NewRunner(&fakeTranscripts{data: data}, &fakeLLM{}, newMemSettings())

	result, err := runner.RunAction(context.Background(), TranscriptTextActionID, "https://youtu.be/abc", "")
	require.NoError(t, err)
	assert.Contains(t, result.Content, "```\nflat text\n```")
}

func TestRunAction_MissingGeminiKey(t *testing.T) {
	t.Parallel()

	runner := NewRunner(&fakeTranscripts{data: sampleTranscript()}, &fakeLLM{}, newMemSettings())

	_, err := runner.RunAction(context.Background(), DefaultActionID, "https://youtu.be/abc", "")
	require.ErrorIs(t, err, ErrAPIKeysMissing)
	assert.Equal(t, APIKeysMissing, DeriveErrorMessage(err))
}

func TestRunAction_EmptyTranscript(t *testing.T) {
	t.Parallel()

	runner := NewRunner(&fakeTranscripts{data: &transcript.Data{}}, &fakeLLM{}, newMemSettings(), WithGeminiSecret("sk"))

	_, err := runner.RunAction(context.Background(), DefaultActionID, "https://youtu.be/abc", "")
	require.ErrorIs(t, err, ErrEmptyTranscript)
}

func TestRunAction_FetchErrorPropagates(t *testing.T) {
	t.Parallel()

	fetchErr := errors.New("connection refused")
	runner := NewRunner(&fakeTranscripts{err: fetchErr}, &fakeLLM{}, newMemSettings(), WithGeminiSecret("sk"))

	_, err := runner.RunAction(context.Background(), DefaultActionID, "https://youtu.be/abc", "")
	require.ErrorIs(t, err, fetchErr)
}

func TestRunAction_SummaryLanguageInPrompt(t *testing.T) {
	t.Parallel()

	llm := &fakeLLM{response: "ok"}
	runner := NewRunner(
		&fakeTranscripts{data: sampleTranscript()},
		llm,
		newMemSettings(),
		WithGeminiSecret("sk"),
		WithSummaryLanguage("fr"),
	)

	_, err := runner.RunAction(context.Background(), DefaultActionID, "https://youtu.be/abc", "")
	require.NoError(t, err)
	assert.Contains(t, llm.prompt, "Generate the response **in French**.")
}

func TestAskQuestion(t *testing.T) {
	t.Parallel()

	llm := &fakeLLM{response: "They say hello at [00:00]."}
	runner := NewRunner(&fakeTranscripts{data: sampleTranscript()}, llm, newMemSettings(), WithGeminiSecret("sk-gem"))

	answer, err := runner.AskQuestion(context.Background(), "https://youtu.be/abc", "When do they say hello?")
	require.NoError(t, err)
	assert.Equal(t, "They say hello at [00:00].", answer)

	require.NotNil(t, llm.opts)
	assert.InDelta(t, 0.4, llm.opts.Temperature, 0.001)
	assert.Equal(t, 4096, llm.opts.MaxOutputTokens)
	assert.Contains(t, llm.prompt, "User Question: When do they say hello?")
}

func TestAskQuestion_MissingKeySkipsFetch(t *testing.T) {
	t.Parallel()

	transcripts := &fakeTranscripts{data: sampleTranscript()}
	runner := NewRunner(transcripts, &fakeLLM{}, newMemSettings())

	_, err := runner.AskQuestion(context.Background(), "https://youtu.be/abc", "anything?")
	require.ErrorIs(t, err, ErrAPIKeysMissing)
	assert.Zero(t, transcripts.calls)
}

func TestActions_SanitisedListPersisted(t *testing.T) {
	t.Parallel()

	settings := newMemSettings()
	require.NoError(t, settings.SetSetting(context.Background(), customActionsSettingName,
		`[{"id":"my-action","label":"Explain","prompt":"Explain {{transcript}}","mode":"gemini"}]`))

	runner := NewRunner(&fakeTranscripts{}, &fakeLLM{}, settings)

	actions, err := runner.Actions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		DefaultActionID, TranscriptTimestampsActionID, TranscriptTextActionID, "my-action",
	}, actionIDs(actions))

	// The cleaned list was written back.
	raw, ok, err := settings.Setting(context.Background(), customActionsSettingName)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, raw, DefaultActionID)
}

func TestActions_MalformedStoredListIgnored(t *testing.T) {
	t.Parallel()

	settings := newMemSettings()
	require.NoError(t, settings.SetSetting(context.Background(), customActionsSettingName, "{not json"))

	runner := NewRunner(&fakeTranscripts{}, &fakeLLM{}, settings)
	actions, err := runner.Actions(context.Background())
	require.NoError(t, err)
	assert.Len(t, actions, 3)
}

func TestSaveActions(t *testing.T) {
	t.Parallel()

	settings := newMemSettings()
	runner := NewRunner(&fakeTranscripts{}, &fakeLLM{}, settings)

	saved, err := runner.SaveActions(context.Background(), []Action{
		{Label: "Explain", Prompt: "Explain it", Mode: ModeGemini},
	})
	require.NoError(t, err)
	assert.Len(t, saved, 4)

	reloaded, err := runner.Actions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, actionIDs(saved), actionIDs(reloaded))
}

func TestDeriveErrorMessage(t *testing.T) {
	t.Parallel()

	geminiErr := &gemini.APIError{StatusCode: 429, Detail: "Gemini API rate limit exceeded or quota finished."}
	noKeysErr := &supadata.FetchError{Type: supadata.ErrNoKeys, Message: "no Supadata API keys configured"}
	exhaustedErr := &supadata.FetchError{Type: supadata.ErrKeysExhausted, Message: "all Supadata API keys are currently rate-limited or exhausted"}
	providerErr := &supadata.FetchError{Type: supadata.ErrProvider, Message: "transcript request rejected", StatusCode: 404}

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "Failed to generate response."},
		{"sentinel passthrough", ErrAPIKeysMissing, APIKeysMissing},
		{"wrapped sentinel", fmt.Errorf("run: %w", ErrAPIKeysMissing), APIKeysMissing},
		{"empty pool surfaces sentinel", noKeysErr, APIKeysMissing},
		{"wrapped empty pool surfaces sentinel", fmt.Errorf("fetch: %w", noKeysErr), APIKeysMissing},
		{"exhausted pool message verbatim", exhaustedErr, exhaustedErr.Message},
		{"fetch error prefixed", providerErr, "Failed to fetch transcript: transcript request rejected"},
		{"gemini error prefixed", geminiErr, "Failed to fetch response from Gemini: " + geminiErr.Error()},
		{"empty response prefixed", gemini.ErrEmptyResponse, "Failed to fetch response from Gemini: " + gemini.ErrEmptyResponse.Error()},
		{"plain error verbatim", errors.New("boom"), "boom"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DeriveErrorMessage(tt.err))
		})
	}
}
