//go:build !integration

package i18n

import (
	"testing"
	"testing/fstest"
)

func TestTranslator(t *testing.T) {
	// Arrange
	translator, err := newTranslatorFromBytes([]byte("greeting: Hello\nwelcome_user: Hello %s\nprice: \"%d ⭐\""))
	if err != nil {
		t.Fatalf("newTranslatorFromBytes failed: %v", err)
	}

	t.Run("should translate a simple key", func(t *testing.T) {
		if got := translator.T("greeting"); got != "Hello" {
			t.Errorf("wanted 'Hello', got '%s'", got)
		}
	})

	t.Run("should return key if not found", func(t *testing.T) {
		if got := translator.T("nonexistent_key"); got != "nonexistent_key" {
			t.Errorf("wanted 'nonexistent_key', got '%s'", got)
		}
	})

	t.Run("should format arguments correctly", func(t *testing.T) {
		if got := translator.T("welcome_user", "Ada"); got != "Hello Ada" {
			t.Errorf("wanted 'Hello Ada', got '%s'", got)
		}
		if got := translator.T("price", 50); got != "50 ⭐" {
			t.Errorf("wanted '50 ⭐', got '%s'", got)
		}
	})
}

func TestNewTranslator(t *testing.T) {
	t.Run("should load the embedded english locale", func(t *testing.T) {
		tr, err := NewTranslator(LocalesFS, "en")
		if err != nil {
			t.Fatalf("NewTranslator failed: %v", err)
		}
		if got := tr.T("status_none"); got == "status_none" {
			t.Error("expected status_none to be translated")
		}
	})

	t.Run("should fall back to english for an unknown language", func(t *testing.T) {
		fsys := fstest.MapFS{"locales/en.yaml": {Data: []byte("hi: Hi")}}
		tr, err := NewTranslator(fsys, "xx")
		if err != nil {
			t.Fatalf("NewTranslator failed: %v", err)
		}
		if tr.Language() != "en" || tr.T("hi") != "Hi" {
			t.Errorf("unexpected fallback result lang=%s hi=%s", tr.Language(), tr.T("hi"))
		}
	})

	t.Run("should fail when no locale exists", func(t *testing.T) {
		if _, err := NewTranslator(fstest.MapFS{}, "en"); err == nil {
			t.Fatal("expected an error")
		}
	})
}
