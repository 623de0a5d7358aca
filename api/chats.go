// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mattermost/reference-annotator/conversations"
	"github.com/mattermost/reference-annotator/llm"
	"github.com/mattermost/reference-annotator/public/client"
	"github.com/mattermost/reference-annotator/streaming"
)

// handleGetChat handles GET /chats/:chatid. A chat that does not exist has no messages.
func (a *API) handleGetChat(c *gin.Context) {
	chat, err := a.loadChat(c.Request.Context(), c.Param("chatid"))
	if err != nil {
		_ = c.Error(err)
		T := a.translator(c)
		c.JSON(http.StatusInternalServerError, client.ErrorResponse{
			Error: T("annotator.internal_error", "An internal error occurred."),
		})
		return
	}

	var messages []conversations.Message
	if chat != nil {
		messages = chat.Messages
	}
	c.JSON(http.StatusOK, client.ChatResponse{Messages: toClientMessages(messages)})
}

// handleSaveChat handles POST /chats/:chatid
func (a *API) handleSaveChat(c *gin.Context) {
	T := a.translator(c)

	var req client.SaveChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Messages == nil {
		c.JSON(http.StatusBadRequest, client.ErrorResponse{
			Error: T("annotator.messages_required", "Messages are required."),
		})
		return
	}

	ctx := c.Request.Context()
	chatID := c.Param("chatid")
	messages := fromClientMessages(req.Messages)

	chat, err := a.loadChat(ctx, chatID)
	if err == nil {
		if chat == nil {
			chat = conversations.NewChat(chatID, conversations.AnonymousUserID, messages)
		}
		chat.Messages = messages
		err = a.chats.Save(ctx, chat)
	}
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, client.ErrorResponse{
			Error: T("annotator.internal_error", "An internal error occurred."),
		})
		return
	}

	c.JSON(http.StatusOK, client.SaveChatResponse{Success: true})
}

// handleSendMessage handles POST /chats/:chatid/messages. The answer is streamed as
// server-sent events followed by its annotation events. When history saving is enabled
// the conversation, including the annotated answer, is saved once the stream ends.
func (a *API) handleSendMessage(c *gin.Context) {
	T := a.translator(c)

	var req client.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, client.ErrorResponse{
			Error: T("annotator.message_required", "A message is required."),
		})
		return
	}

	languageModel := a.languageModel()
	if languageModel == nil {
		c.JSON(http.StatusServiceUnavailable, client.ErrorResponse{
			Error: T("annotator.no_language_model", "No language model is configured."),
		})
		return
	}

	ctx := streaming.WithLocale(c.Request.Context(), c.GetString(ContextLocaleKey))
	chatID := c.Param("chatid")
	saveHistory := a.config.EnableSaveHistory()

	var chat *conversations.Chat
	if saveHistory {
		var err error
		chat, err = a.loadChat(ctx, chatID)
		if err != nil {
			// Saving without the stored history would overwrite it.
			a.log.Warn("Failed to load chat history, the answer will not be saved", "chat_id", chatID, "error", err)
			saveHistory = false
		}
	}

	var history []conversations.Message
	if chat != nil {
		history = chat.Messages
	}
	history = append(history, conversations.NewMessage(conversations.RoleUser, req.Message))

	stream, err := languageModel.ChatCompletion(ctx, llm.CompletionRequest{
		Posts: toPosts(a.config.SystemPrompt(), history),
		User:  conversations.AnonymousUserID,
	})
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, client.ErrorResponse{
			Error: T("annotator.llm_error", "Sorry! An error occurred while accessing the language model. See server logs for details."),
		})
		return
	}

	setSSEHeaders(c.Writer)
	c.Status(http.StatusOK)

	sink := &sseSink{w: c.Writer, T: T, log: a.log}
	attachment := a.annotator.StreamAnswer(ctx, stream, sink, history)

	if !saveHistory {
		return
	}

	// The answer is saved even if the client went away while it streamed.
	saveCtx := context.WithoutCancel(ctx)
	if chat == nil {
		chat = conversations.NewChat(chatID, conversations.AnonymousUserID, attachment.Messages)
	}
	chat.Messages = attachment.Messages
	if err := a.chats.Save(saveCtx, chat); err != nil {
		a.log.Error("Failed to save chat history", "chat_id", chatID, "error", err)
	}
}

// loadChat returns the chat, or nil when it does not exist.
func (a *API) loadChat(ctx context.Context, chatID string) (*conversations.Chat, error) {
	chat, err := a.chats.Get(ctx, chatID, conversations.AnonymousUserID)
	if errors.Is(err, conversations.ErrChatNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return chat, nil
}
