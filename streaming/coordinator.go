// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

// Package streaming attaches reference annotations to finished answers and relays
// language model streams to clients.
package streaming

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"

	"github.com/mattermost/reference-annotator/annotationcache"
	"github.com/mattermost/reference-annotator/annotations"
	"github.com/mattermost/reference-annotator/conversations"
	"github.com/mattermost/reference-annotator/i18n"
	"github.com/mattermost/reference-annotator/llm"
	"github.com/mattermost/reference-annotator/logger"
)

// Extractor finds candidate references in an answer.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]annotations.ReferenceEntry, error)
}

// EventSink receives the events of one answer in order.
type EventSink interface {
	Send(event llm.TextStreamEvent)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(event llm.TextStreamEvent)

func (f SinkFunc) Send(event llm.TextStreamEvent) {
	f(event)
}

// OutcomeObserver counts terminal annotation states.
type OutcomeObserver interface {
	IncrementAnnotationOutcome(status string)
}

// Attachment is the outcome of annotating one answer. Messages is a copy of the input
// in which only the annotated message differs. Related is the terminal related question
// event, zero when no questions were requested.
type Attachment struct {
	Messages []conversations.Message
	State    annotations.Status
	Event    annotations.Event
	Related  annotations.RelatedEvent
}

type Coordinator struct {
	cache     *annotationcache.Cache
	extractor Extractor
	bundle    *goi18n.Bundle
	log       logger.Logger
	observer  OutcomeObserver
	topN      atomic.Int64
	now       func() time.Time

	questionsMu sync.RWMutex
	questions   QuestionGenerator
}

func NewCoordinator(cache *annotationcache.Cache, extractor Extractor, bundle *goi18n.Bundle, log logger.Logger, observer OutcomeObserver, topN int) *Coordinator {
	if log == nil {
		log = logger.Nop()
	}
	c := &Coordinator{
		cache:     cache,
		extractor: extractor,
		bundle:    bundle,
		log:       log,
		observer:  observer,
		now:       time.Now,
	}
	c.SetTopN(topN)
	return c
}

// SetTopN changes how many references are kept for answers computed from now on.
// Values below one select annotations.DefaultTopN.
func (c *Coordinator) SetTopN(topN int) {
	if topN < 1 {
		topN = annotations.DefaultTopN
	}
	c.topN.Store(int64(topN))
}

func (c *Coordinator) TopN() int {
	return int(c.topN.Load())
}

// SetQuestionGenerator enables follow-up questions on streamed answers. nil disables them.
func (c *Coordinator) SetQuestionGenerator(generator QuestionGenerator) {
	c.questionsMu.Lock()
	defer c.questionsMu.Unlock()
	c.questions = generator
}

// QuestionGenerator returns the generator set by SetQuestionGenerator, or nil.
func (c *Coordinator) QuestionGenerator() QuestionGenerator {
	c.questionsMu.RLock()
	defer c.questionsMu.RUnlock()
	return c.questions
}

// Annotate returns the ranked references for text, computing them at most once per
// distinct content. The returned entries are a copy the caller may modify.
func (c *Coordinator) Annotate(ctx context.Context, text string) ([]annotations.ReferenceEntry, error) {
	if strings.TrimSpace(text) == "" {
		return nil, annotations.ErrInvalidInput
	}

	limit := c.TopN()
	key := annotations.NewContentKey(text)
	result, err := c.cache.GetOrCompute(ctx, key, func(ctx context.Context) ([]annotations.ReferenceEntry, error) {
		entries, err := c.extractor.Extract(ctx, text)
		if err != nil {
			return nil, err
		}
		return annotations.Rank(entries, limit), nil
	})
	if err != nil {
		return nil, err
	}
	return annotations.CloneEntries(result.Entries), nil
}

// OnAnswerFinished annotates the message with messageID. A loading event is sent first and
// exactly one terminal event follows. Failures are reported through the terminal event and
// never remove the answer from the returned messages.
func (c *Coordinator) OnAnswerFinished(ctx context.Context, sink EventSink, messages []conversations.Message, messageID string) (attachment Attachment) {
	out := make([]conversations.Message, len(messages))
	copy(out, messages)
	attachment.Messages = out

	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Recovered from panic while annotating answer", "message_id", messageID, "panic", fmt.Sprint(r))
			attachment.Messages = out
			attachment.State, attachment.Event = c.failed(ctx)
		}
	}()

	c.emit(sink, annotations.NewEvent(annotations.StatusLoading, nil, c.now()))

	index := conversations.FindMessage(out, messageID)
	if index < 0 {
		c.log.Warn("Answer to annotate not found in conversation", "message_id", messageID)
		attachment.State, attachment.Event = c.failed(ctx)
		c.finish(sink, attachment)
		return attachment
	}

	entries, err := c.Annotate(ctx, out[index].Content)
	switch {
	case errors.Is(err, annotations.ErrInvalidInput):
		attachment.State = annotations.StatusEmpty
		attachment.Event = annotations.NewEvent(annotations.StatusEmpty, nil, c.now())
	case err != nil:
		c.log.Warn("Failed to annotate answer", "message_id", messageID, "error", err)
		attachment.State, attachment.Event = c.failed(ctx)
	case len(entries) == 0:
		attachment.State = annotations.StatusEmpty
		attachment.Event = annotations.NewEvent(annotations.StatusEmpty, nil, c.now())
	default:
		attachment.State = annotations.StatusResolved
		attachment.Event = annotations.NewEvent(annotations.StatusResolved, entries, c.now())
		out[index].Annotations = annotations.CloneEntries(entries)
	}

	c.finish(sink, attachment)
	return attachment
}

func (c *Coordinator) failed(ctx context.Context) (annotations.Status, annotations.Event) {
	T := i18n.LocalizerFunc(c.bundle, LocaleFromContext(ctx))
	event := annotations.NewEvent(annotations.StatusFailed, nil, c.now())
	event.Error = T("annotator.references_failed", "Unable to retrieve references.")
	return annotations.StatusFailed, event
}

func (c *Coordinator) finish(sink EventSink, attachment Attachment) {
	if c.observer != nil {
		c.observer.IncrementAnnotationOutcome(string(attachment.State))
	}
	c.emit(sink, attachment.Event)
}

func (c *Coordinator) emit(sink EventSink, event annotations.Event) {
	if sink == nil {
		return
	}
	sink.Send(llm.TextStreamEvent{
		Type:  llm.EventTypeAnnotations,
		Value: event,
	})
}

type localeKey struct{}

// WithLocale sets the locale used for user-visible markers.
func WithLocale(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, localeKey{}, locale)
}

// LocaleFromContext returns the locale set by WithLocale, or English.
func LocaleFromContext(ctx context.Context) string {
	if locale, ok := ctx.Value(localeKey{}).(string); ok && locale != "" {
		return locale
	}
	return "en"
}
