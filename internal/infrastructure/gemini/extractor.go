// Package gemini extracts structured task fields from free text with a Gemini model.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/fastygo/taskbot/domain"
	"github.com/fastygo/taskbot/usecase"
)

const (
	DefaultModel     = "gemini-2.0-flash"
	temperature      = 0.3
	maxOutputTokens  = 700
	jsonResponseMIME = "application/json"
)

const promptTemplate = `Ты — виртуальный помощник по управлению задачами.
Сегодня %s.

Пользователь прислал фрагменты задачи. На их основе:
1. Сформулируй полное описание задачи одной связной фразой.
2. Извлеки:
   - срок (deadline) в формате YYYY-MM-DD
   - время (task_time) в формате HH:MM
   - кто дал задачу (task_giver)
   - комментарий или контекст (comment)
   - все ссылки (links)

Если чего-то нет, пиши null.

Ответ строго в JSON:
{
  "task_title": "...",
  "deadline": "YYYY-MM-DD" или null,
  "task_time": "HH:MM" или null,
  "task_giver": "Имя или отдел" или null,
  "comment": "Контекст задачи" или null,
  "links": ["https://..."]
}

Фрагменты задачи:
"""
%s
"""%s%s`

type generateFunc func(ctx context.Context, prompt string) (string, error)

// Extractor implements usecase.FieldExtractor on top of the Gemini API.
type Extractor struct {
	generate generateFunc
	loc      *time.Location
	now      func() time.Time
	logger   *zap.Logger
}

var _ usecase.FieldExtractor = (*Extractor)(nil)

// NewExtractor creates a Gemini client for model using apiKey.
func NewExtractor(ctx context.Context, apiKey, model string, loc *time.Location, logger *zap.Logger) (*Extractor, error) {
	if apiKey == "" {
		return nil, domain.ErrCollaboratorDisabled
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](temperature),
		MaxOutputTokens:  maxOutputTokens,
		ResponseMIMEType: jsonResponseMIME,
	}
	generate := func(ctx context.Context, prompt string) (string, error) {
		resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), config)
		if err != nil {
			return "", fmt.Errorf("GenAI generate failed: %w", err)
		}
		return resp.Text(), nil
	}

	return newExtractor(generate, loc, logger), nil
}

func newExtractor(generate generateFunc, loc *time.Location, logger *zap.Logger) *Extractor {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{generate: generate, loc: loc, now: time.Now, logger: logger}
}

func (e *Extractor) Extract(ctx context.Context, text string, attachments []string, sender string) (*domain.ExtractedFields, error) {
	raw, err := e.generate(ctx, e.prompt(text, attachments, sender))
	if err != nil {
		return nil, err
	}

	fields, err := decode(raw)
	if err != nil {
		e.logger.Warn("extractor returned unparseable output",
			zap.Error(err),
			zap.Int("length", len(raw)),
		)
		return nil, err
	}
	fields.Normalize()
	return fields, nil
}

func (e *Extractor) prompt(text string, attachments []string, sender string) string {
	var senderInfo, filesInfo string
	if sender != "" {
		senderInfo = "\n\nСообщения были пересланы от: " + sender
	}
	if len(attachments) > 0 {
		lines := make([]string, 0, len(attachments))
		for _, f := range attachments {
			lines = append(lines, "📎 "+f)
		}
		filesInfo = "\n\nТакже к задаче приложены файлы:\n" + strings.Join(lines, "\n")
	}
	today := e.now().In(e.loc).Format("2006-01-02")
	return fmt.Sprintf(promptTemplate, today, text, senderInfo, filesInfo)
}

// decode parses model output, repairing malformed JSON and stripping code
// fences when the model ignores the response format.
func decode(raw string) (*domain.ExtractedFields, error) {
	raw = stripFence(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty extractor response")
	}

	var fields domain.ExtractedFields
	if err := json.Unmarshal([]byte(raw), &fields); err == nil {
		return &fields, nil
	}

	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return nil, fmt.Errorf("repair extractor response: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &fields); err != nil {
		return nil, fmt.Errorf("decode extractor response: %w", err)
	}
	return &fields, nil
}

func stripFence(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimPrefix(raw, "json")
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	return strings.TrimSpace(raw)
}

// Disabled stands in when no API key is configured. Every extraction fails,
// so all fields are gathered through questions.
type Disabled struct{}

func (Disabled) Extract(context.Context, string, []string, string) (*domain.ExtractedFields, error) {
	return nil, domain.ErrCollaboratorDisabled
}
