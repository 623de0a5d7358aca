// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

// Package client provides a client library for the reference annotator HTTP API.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// APIError is returned when the server answers with a non-success status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

// StreamCallback is called for each event of an answer stream. Returning an error stops
// the stream and that error is returned.
type StreamCallback func(event StreamEvent) error

// Client is a client for the reference annotator API
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type Option func(*Client)

// WithToken sends token as a bearer credential on every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a client for the server at baseURL, for example
// "http://127.0.0.1:8080".
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Annotate returns the ranked references for text.
//
// Example:
//
//	refs, err := c.Annotate(ctx, "Isaac Newton formulated the laws of motion.")
func (c *Client) Annotate(ctx context.Context, text string) ([]Reference, error) {
	var resp AnnotateResponse
	if err := c.doJSON(ctx, http.MethodPost, "/annotations", AnnotateRequest{Text: text}, &resp); err != nil {
		return nil, err
	}
	return resp.Data.Annotations, nil
}

// GetChat returns the messages of a chat. A chat that does not exist has no messages.
func (c *Client) GetChat(ctx context.Context, chatID string) ([]Message, error) {
	var resp ChatResponse
	if err := c.doJSON(ctx, http.MethodGet, chatPath(chatID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// SaveChat stores messages as the content of a chat.
func (c *Client) SaveChat(ctx context.Context, chatID string, messages []Message) error {
	var resp SaveChatResponse
	if err := c.doJSON(ctx, http.MethodPost, chatPath(chatID), SaveChatRequest{Messages: messages}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return errors.Errorf("chat %s was not saved", chatID)
	}
	return nil
}

// SendMessage asks a question in a chat and streams the answer to callback, followed by
// the annotation events of the answer.
func (c *Client) SendMessage(ctx context.Context, chatID, message string, callback StreamCallback) error {
	req, err := c.newRequest(ctx, http.MethodPost, chatPath(chatID)+"/messages", SendMessageRequest{Message: message})
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to execute request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		// SSE lines start with "data: "
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok || data == "" {
			continue
		}

		var event StreamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			return errors.Wrap(err, "failed to decode stream event")
		}

		if err := callback(event); err != nil {
			return errors.Wrap(err, "callback error")
		}

		switch event.Type {
		case StreamEventEnd:
			return nil
		case StreamEventError:
			return errors.Errorf("streaming error: %s", event.Error)
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "error reading stream")
	}

	return nil
}

func chatPath(chatID string) string {
	return "/chats/" + url.PathEscape(chatID)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to execute request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "failed to unmarshal response")
	}
	return nil
}

func apiError(resp *http.Response) error {
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{StatusCode: resp.StatusCode}
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(respBody, &errResp); err != nil || errResp.Error == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
}
