package translation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/MustfainTariq/Jama-Translator/retry"
)

// OpenAIConfig configures the chat-completion translator.
type OpenAIConfig struct {
	APIKey string
	// Model defaults to gpt-4o-mini.
	Model string
	// BaseURL overrides the API endpoint, used by tests.
	BaseURL string
	// MaxContextMessages is the number of user messages kept in the rolling
	// conversation before it is reset to the system prompt. Defaults to 9.
	MaxContextMessages int
}

// OpenAITranslator translates caption text with a chat model acting as a
// simultaneous interpreter. It keeps a rolling conversation per
// (session, target language) so consecutive segments translate coherently,
// resetting the context periodically to prevent drift.
type OpenAITranslator struct {
	client      *openai.Client
	model       string
	maxMessages int

	mu       sync.Mutex
	contexts map[string]*conversation
}

type conversation struct {
	messages  []openai.ChatCompletionMessage
	userCount int
}

// NewOpenAITranslator constructs a translator from the given config.
func NewOpenAITranslator(cfg OpenAIConfig) *OpenAITranslator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	maxMessages := cfg.MaxContextMessages
	if maxMessages <= 0 {
		maxMessages = 9
	}

	return &OpenAITranslator{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		maxMessages: maxMessages,
		contexts:    make(map[string]*conversation),
	}
}

func systemPrompt(sourceLang, targetLang string) string {
	return fmt.Sprintf(
		"You are a professional simultaneous interpreter. "+
			"Translate the provided %s text to %s. "+
			"Rules: 1) Translate ONLY the most recent sentence. "+
			"2) Be accurate and respectful with religious terminology. "+
			"3) Use natural, spoken language appropriate for live captions. "+
			"4) Return ONLY the translation, no explanations. "+
			"5) Maintain the tone and meaning of the original.",
		sourceLang, targetLang,
	)
}

// Translate sends the segment text through the rolling conversation for its
// channel and returns the model's translation.
func (t *OpenAITranslator) Translate(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Text) == "" {
		return "", retry.Permanent(errors.New("empty translation input"))
	}

	messages := t.appendUser(req)

	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    t.model,
		Messages: messages,
	})
	if err != nil {
		t.dropLastUser(req)
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty completion")
	}

	translated := strings.TrimSpace(resp.Choices[0].Message.Content)
	t.appendAssistant(req, translated)
	return translated, nil
}

// ForgetSession drops all conversations belonging to the session.
func (t *OpenAITranslator) ForgetSession(sessionID string) {
	prefix := sessionID + "|"
	t.mu.Lock()
	for key := range t.contexts {
		if strings.HasPrefix(key, prefix) {
			delete(t.contexts, key)
		}
	}
	t.mu.Unlock()
}

// Health reports the translator as healthy; the API is only exercised on
// demand so there is no cheap liveness probe.
func (t *OpenAITranslator) Health() HealthStatus {
	return HealthStatus{Healthy: true, Message: "openai translator ready"}
}

func contextKey(req Request) string {
	return req.SessionID + "|" + req.TargetLang
}

func (t *OpenAITranslator) appendUser(req Request) []openai.ChatCompletionMessage {
	t.mu.Lock()
	defer t.mu.Unlock()

	conv, ok := t.contexts[contextKey(req)]
	if !ok || conv.userCount >= t.maxMessages {
		conv = &conversation{
			messages: []openai.ChatCompletionMessage{{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt(req.SourceLang, req.TargetLang),
			}},
		}
		t.contexts[contextKey(req)] = conv
	}

	conv.messages = append(conv.messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Text,
	})
	conv.userCount++

	return append([]openai.ChatCompletionMessage(nil), conv.messages...)
}

func (t *OpenAITranslator) appendAssistant(req Request, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if conv, ok := t.contexts[contextKey(req)]; ok {
		conv.messages = append(conv.messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: text,
		})
	}
}

func (t *OpenAITranslator) dropLastUser(req Request) {
	t.mu.Lock()
	defer t.mu.Unlock()

	conv, ok := t.contexts[contextKey(req)]
	if !ok || len(conv.messages) == 0 {
		return
	}
	last := conv.messages[len(conv.messages)-1]
	if last.Role == openai.ChatMessageRoleUser {
		conv.messages = conv.messages[:len(conv.messages)-1]
		conv.userCount--
	}
}

// classifyOpenAIError separates failures the caller should retry from ones it
// should not: rate limits and server errors are transient, other API statuses
// are permanent.
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500 {
			return fmt.Errorf("openai transient failure: %w", err)
		}
		return retry.Permanent(fmt.Errorf("openai rejected request: %w", err))
	}
	// Network-level failures are worth another attempt.
	return fmt.Errorf("openai request failed: %w", err)
}
