package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// Sink receives rendered report documents. The production sink is
// Telegram; tests substitute a recorder.
type Sink interface {
	SendDocument(ctx context.Context, filename string, content []byte) error
}

// TelegramSink ships report documents to a Telegram chat via the bot
// API's sendDocument call.
type TelegramSink struct {
	token   string
	chatID  string
	client  *http.Client
	baseURL string
}

// NewTelegramSink creates a sink posting to the given bot and chat.
// client should carry the document timeout.
func NewTelegramSink(token, chatID string, client *http.Client) *TelegramSink {
	return &TelegramSink{
		token:   token,
		chatID:  chatID,
		client:  client,
		baseURL: "https://api.telegram.org",
	}
}

// SendDocument uploads content as a named document to the configured
// chat. A non-200 answer from the API is an error carrying the response
// body for diagnosis.
func (s *TelegramSink) SendDocument(ctx context.Context, filename string, content []byte) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := mw.WriteField("chat_id", s.chatID); err != nil {
		return fmt.Errorf("failed to build request body: %w", err)
	}
	part, err := mw.CreateFormFile("document", filename)
	if err != nil {
		return fmt.Errorf("failed to build request body: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return fmt.Errorf("failed to build request body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("failed to build request body: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendDocument", s.baseURL, s.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		answer, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("telegram API returned %d: %s", resp.StatusCode, answer)
	}
	return nil
}
