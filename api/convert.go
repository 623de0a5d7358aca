// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package api

import (
	"github.com/mattermost/reference-annotator/annotations"
	"github.com/mattermost/reference-annotator/conversations"
	"github.com/mattermost/reference-annotator/llm"
	"github.com/mattermost/reference-annotator/public/client"
)

func toReferences(entries []annotations.ReferenceEntry) []client.Reference {
	references := make([]client.Reference, 0, len(entries))
	for _, entry := range entries {
		references = append(references, client.Reference{
			Title:      entry.Title,
			URL:        entry.URL,
			Confidence: entry.Confidence,
		})
	}
	return references
}

func fromReferences(references []client.Reference) []annotations.ReferenceEntry {
	if len(references) == 0 {
		return nil
	}
	entries := make([]annotations.ReferenceEntry, 0, len(references))
	for _, reference := range references {
		entries = append(entries, annotations.ReferenceEntry{
			Title:      reference.Title,
			URL:        reference.URL,
			Confidence: reference.Confidence,
		})
	}
	return entries
}

func toClientMessages(messages []conversations.Message) []client.Message {
	out := make([]client.Message, 0, len(messages))
	for _, message := range messages {
		var references []client.Reference
		if len(message.Annotations) > 0 {
			references = toReferences(message.Annotations)
		}
		var related []client.RelatedQuestion
		for _, question := range message.RelatedQuestions {
			related = append(related, client.RelatedQuestion{Query: question.Query})
		}
		out = append(out, client.Message{
			ID:               message.ID,
			Role:             string(message.Role),
			Content:          message.Content,
			Timestamp:        message.Timestamp,
			Annotations:      references,
			RelatedQuestions: related,
		})
	}
	return out
}

// fromClientMessages converts saved messages, assigning ids and timestamps to messages
// sent without them.
func fromClientMessages(messages []client.Message) []conversations.Message {
	out := make([]conversations.Message, 0, len(messages))
	for _, message := range messages {
		converted := conversations.NewMessage(conversations.Role(message.Role), message.Content)
		if message.ID != "" {
			converted.ID = message.ID
		}
		if !message.Timestamp.IsZero() {
			converted.Timestamp = message.Timestamp.UTC()
		}
		converted.Annotations = fromReferences(message.Annotations)
		for _, question := range message.RelatedQuestions {
			converted.RelatedQuestions = append(converted.RelatedQuestions, annotations.RelatedQuestion{Query: question.Query})
		}
		out = append(out, converted)
	}
	return out
}

// toPosts builds the language model conversation, led by systemPrompt when set.
func toPosts(systemPrompt string, messages []conversations.Message) []llm.Post {
	posts := make([]llm.Post, 0, len(messages)+1)
	if systemPrompt != "" {
		posts = append(posts, llm.Post{Role: llm.PostRoleSystem, Message: systemPrompt})
	}
	for _, message := range messages {
		var role llm.PostRole
		switch message.Role {
		case conversations.RoleUser:
			role = llm.PostRoleUser
		case conversations.RoleAssistant:
			role = llm.PostRoleBot
		case conversations.RoleSystem:
			role = llm.PostRoleSystem
		default:
			continue
		}
		posts = append(posts, llm.Post{Role: role, Message: message.Content})
	}
	return posts
}
