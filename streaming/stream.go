// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package streaming

import (
	"context"
	"fmt"
	"strings"

	"github.com/mattermost/reference-annotator/annotations"
	"github.com/mattermost/reference-annotator/conversations"
	"github.com/mattermost/reference-annotator/i18n"
	"github.com/mattermost/reference-annotator/llm"
)

// StreamAnswer relays a language model stream to sink and annotates the answer once the
// stream ends. messages is the conversation the answer responds to; the returned
// attachment holds it followed by the assistant message.
//
// Text chunks are forwarded as they arrive. When the stream ends cleanly the loading and
// terminal annotation events follow, then the related question events when a question
// generator is set, then the end event. A stream error is forwarded as is
// and replaces the answer with a localized marker, without annotations. If ctx is
// cancelled the partial answer is kept and nothing more is sent.
func (c *Coordinator) StreamAnswer(ctx context.Context, stream *llm.TextStreamResult, sink EventSink, messages []conversations.Message) Attachment {
	T := i18n.LocalizerFunc(c.bundle, LocaleFromContext(ctx))
	answer := conversations.NewMessage(conversations.RoleAssistant, "")

	var text strings.Builder
	conversation := func() []conversations.Message {
		out := make([]conversations.Message, 0, len(messages)+1)
		out = append(out, messages...)
		answer.Content = text.String()
		return append(out, answer)
	}

	for {
		select {
		case event, ok := <-stream.Stream:
			if !ok {
				c.log.Warn("Language model stream closed without an end event", "message_id", answer.ID)
				return c.finishAnswer(ctx, sink, conversation(), answer.ID)
			}

			switch event.Type {
			case llm.EventTypeText:
				if chunk, ok := event.Value.(string); ok {
					text.WriteString(chunk)
					sink.Send(event)
				}
			case llm.EventTypeEnd:
				if strings.TrimSpace(text.String()) == "" {
					c.log.Error("Language model closed stream with no result", "message_id", answer.ID)
					text.Reset()
					text.WriteString(T("annotator.llm_no_result", "Sorry! The language model did not return a result."))
					sink.Send(llm.TextStreamEvent{Type: llm.EventTypeText, Value: text.String()})
					return c.endWithoutAnnotations(sink, conversation())
				}
				return c.finishAnswer(ctx, sink, conversation(), answer.ID)
			case llm.EventTypeError:
				err, ok := event.Value.(error)
				if !ok {
					err = fmt.Errorf("unknown error from language model")
				}
				c.log.Error("Streaming answer failed partway", "message_id", answer.ID, "error", err)
				sink.Send(llm.TextStreamEvent{Type: llm.EventTypeError, Value: err})

				text.Reset()
				text.WriteString(T("annotator.llm_error", "Sorry! An error occurred while accessing the language model. See server logs for details."))
				return Attachment{
					Messages: conversation(),
					State:    annotations.StatusIdle,
				}
			case llm.EventTypeAnnotations, llm.EventTypeUsage:
				continue
			}
		case <-ctx.Done():
			c.log.Debug("Streaming answer stopped", "message_id", answer.ID, "error", ctx.Err())
			go drain(stream)
			return Attachment{
				Messages: conversation(),
				State:    annotations.StatusIdle,
			}
		}
	}
}

func (c *Coordinator) finishAnswer(ctx context.Context, sink EventSink, messages []conversations.Message, answerID string) Attachment {
	attachment := c.OnAnswerFinished(ctx, sink, messages, answerID)
	if generator := c.QuestionGenerator(); generator != nil {
		c.attachRelatedQuestions(ctx, sink, generator, &attachment, answerID)
	}
	sink.Send(llm.TextStreamEvent{Type: llm.EventTypeEnd})
	return attachment
}

func (c *Coordinator) endWithoutAnnotations(sink EventSink, messages []conversations.Message) Attachment {
	sink.Send(llm.TextStreamEvent{Type: llm.EventTypeEnd})
	return Attachment{
		Messages: messages,
		State:    annotations.StatusIdle,
	}
}

// drain discards the rest of stream so its producer can exit.
func drain(stream *llm.TextStreamResult) {
	for range stream.Stream {
	}
}
