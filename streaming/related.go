// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/mattermost/reference-annotator/annotations"
	"github.com/mattermost/reference-annotator/conversations"
	"github.com/mattermost/reference-annotator/i18n"
	"github.com/mattermost/reference-annotator/llm"
)

const (
	relatedQuestionsPrompt = `Suggest %d follow-up questions the user could ask next about the conversation below. Each question must explore the topic of the last answer further, must not repeat a question already asked and must be at most 100 characters long. Write them in the language of the conversation.

Respond with JSON only, in this form: {"items":[{"query":"first question"}]}`

	relatedQuestionsMaxTokens = 512
)

var errNoRelatedQuestions = errors.New("language model returned no usable related questions")

// QuestionGenerator suggests follow-up questions for a finished conversation.
type QuestionGenerator interface {
	RelatedQuestions(ctx context.Context, messages []conversations.Message) ([]annotations.RelatedQuestion, error)
}

// LLMQuestionGenerator asks the current language model for follow-up questions.
type LLMQuestionGenerator struct {
	model func() llm.LanguageModel
	count atomic.Int64
}

// NewLLMQuestionGenerator creates a generator. model is called for every request so the
// configured model can change at runtime.
func NewLLMQuestionGenerator(model func() llm.LanguageModel, count int) *LLMQuestionGenerator {
	g := &LLMQuestionGenerator{model: model}
	g.SetCount(count)
	return g
}

// SetCount changes how many questions are requested. Values below one select
// annotations.DefaultRelatedQuestions.
func (g *LLMQuestionGenerator) SetCount(count int) {
	if count < 1 {
		count = annotations.DefaultRelatedQuestions
	}
	g.count.Store(int64(count))
}

func (g *LLMQuestionGenerator) Count() int {
	return int(g.count.Load())
}

func (g *LLMQuestionGenerator) RelatedQuestions(ctx context.Context, messages []conversations.Message) ([]annotations.RelatedQuestion, error) {
	model := g.model()
	if model == nil {
		return nil, llm.ErrNoLanguageModel
	}

	count := g.Count()
	var transcript strings.Builder
	for _, message := range messages {
		if message.Role == conversations.RoleSystem || strings.TrimSpace(message.Content) == "" {
			continue
		}
		fmt.Fprintf(&transcript, "%s: %s\n\n", message.Role, message.Content)
	}

	response, err := model.ChatCompletionNoStream(ctx, llm.CompletionRequest{
		Posts: []llm.Post{
			{Role: llm.PostRoleSystem, Message: fmt.Sprintf(relatedQuestionsPrompt, count)},
			{Role: llm.PostRoleUser, Message: transcript.String()},
		},
	}, llm.WithMaxGeneratedTokens(relatedQuestionsMaxTokens))
	if err != nil {
		return nil, fmt.Errorf("failed to generate related questions: %w", err)
	}

	return parseRelatedQuestions(response, count)
}

// parseRelatedQuestions reads the JSON object in response, tolerating text or code fences
// around it. Blank and repeated questions are dropped and at most limit are kept.
func parseRelatedQuestions(response string, limit int) ([]annotations.RelatedQuestion, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end < start {
		return nil, errNoRelatedQuestions
	}

	var data annotations.RelatedData
	if err := json.Unmarshal([]byte(response[start:end+1]), &data); err != nil {
		return nil, fmt.Errorf("%w: %w", errNoRelatedQuestions, err)
	}

	seen := make(map[string]bool, len(data.Items))
	questions := make([]annotations.RelatedQuestion, 0, limit)
	for _, item := range data.Items {
		query := strings.TrimSpace(item.Query)
		if query == "" || seen[strings.ToLower(query)] {
			continue
		}
		seen[strings.ToLower(query)] = true
		questions = append(questions, annotations.RelatedQuestion{Query: query})
		if len(questions) == limit {
			break
		}
	}
	return questions, nil
}

// attachRelatedQuestions sends a loading event then exactly one terminal related question
// event, and sets the questions on the message with answerID when there are any.
func (c *Coordinator) attachRelatedQuestions(ctx context.Context, sink EventSink, generator QuestionGenerator, attachment *Attachment, answerID string) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Recovered from panic while generating related questions", "message_id", answerID, "panic", fmt.Sprint(r))
			attachment.Related = c.relatedFailed(ctx)
			c.emitRelated(sink, attachment.Related)
		}
	}()

	c.emitRelated(sink, annotations.NewRelatedEvent(annotations.StatusLoading, nil, c.now()))

	index := conversations.FindMessage(attachment.Messages, answerID)
	if index < 0 {
		attachment.Related = c.relatedFailed(ctx)
		c.emitRelated(sink, attachment.Related)
		return
	}

	questions, err := generator.RelatedQuestions(ctx, attachment.Messages)
	switch {
	case err != nil:
		c.log.Warn("Failed to generate related questions", "message_id", answerID, "error", err)
		attachment.Related = c.relatedFailed(ctx)
	case len(questions) == 0:
		attachment.Related = annotations.NewRelatedEvent(annotations.StatusEmpty, nil, c.now())
	default:
		attachment.Related = annotations.NewRelatedEvent(annotations.StatusResolved, questions, c.now())
		attachment.Messages[index].RelatedQuestions = questions
	}
	c.emitRelated(sink, attachment.Related)
}

func (c *Coordinator) relatedFailed(ctx context.Context) annotations.RelatedEvent {
	T := i18n.LocalizerFunc(c.bundle, LocaleFromContext(ctx))
	event := annotations.NewRelatedEvent(annotations.StatusFailed, nil, c.now())
	event.Error = T("annotator.related_questions_failed", "Failed to generate related questions.")
	return event
}

func (c *Coordinator) emitRelated(sink EventSink, event annotations.RelatedEvent) {
	if sink == nil {
		return
	}
	sink.Send(llm.TextStreamEvent{
		Type:  llm.EventTypeAnnotations,
		Value: event,
	})
}
