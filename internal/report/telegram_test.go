package report

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTelegramSinkSendDocument(t *testing.T) {
	var gotPath, gotChatID, gotFilename, gotContent string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			return
		}
		gotChatID = r.FormValue("chat_id")
		file, header, err := r.FormFile("document")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		defer file.Close()
		gotFilename = header.Filename
		body, _ := io.ReadAll(file)
		gotContent = string(body)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	sink := NewTelegramSink("bot-token", "-100123", srv.Client())
	sink.baseURL = srv.URL

	err := sink.SendDocument(context.Background(), "errors_x.json", []byte(`{"errors":[]}`))
	if err != nil {
		t.Fatalf("SendDocument() error = %v", err)
	}

	if gotPath != "/botbot-token/sendDocument" {
		t.Errorf("path = %q", gotPath)
	}
	if gotChatID != "-100123" {
		t.Errorf("chat_id = %q", gotChatID)
	}
	if gotFilename != "errors_x.json" {
		t.Errorf("filename = %q", gotFilename)
	}
	if gotContent != `{"errors":[]}` {
		t.Errorf("content = %q", gotContent)
	}
}

func TestTelegramSinkAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false,"description":"chat not found"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	sink := NewTelegramSink("bot-token", "nope", srv.Client())
	sink.baseURL = srv.URL

	err := sink.SendDocument(context.Background(), "errors_x.json", []byte("{}"))
	if err == nil {
		t.Fatal("expected error on non-200 API answer")
	}
	if !strings.Contains(err.Error(), "chat not found") {
		t.Errorf("error should carry the API answer: %v", err)
	}
}
