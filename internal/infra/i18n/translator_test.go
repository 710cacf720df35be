//go:build !integration

package i18n

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestTranslator(t *testing.T) {
	translator, err := newTranslatorFromBytes([]byte("greeting: Hola\nwelcome_user: Hola %s"))
	if err != nil {
		t.Fatalf("newTranslatorFromBytes failed: %v", err)
	}

	t.Run("should translate a simple key", func(t *testing.T) {
		if got, want := translator.T("greeting"), "Hola"; got != want {
			t.Errorf("wanted '%s', got '%s'", want, got)
		}
	})

	t.Run("should return key if not found", func(t *testing.T) {
		if got, want := translator.T("nonexistent_key"), "nonexistent_key"; got != want {
			t.Errorf("wanted '%s', got '%s'", want, got)
		}
	})

	t.Run("should format arguments correctly", func(t *testing.T) {
		if got, want := translator.T("welcome_user", "Ana"), "Hola Ana"; got != want {
			t.Errorf("wanted '%s', got '%s'", want, got)
		}
	})
}

func TestCatalog_Fallback(t *testing.T) {
	fsys := fstest.MapFS{
		"locales/es.yaml": {Data: []byte("lang: es\ntitle: Pago")},
		"locales/en.yaml": {Data: []byte("lang: en\ntitle: Payment")},
	}
	c, err := NewCatalog(fsys, "es", "en")
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}

	cases := map[string]string{"": "Pago", "en": "Payment", "en-US": "Payment", "EN": "Payment", "fr": "Pago"}
	for lang, want := range cases {
		if got := c.For(lang).T("title"); got != want {
			t.Errorf("For(%q).T(title) = %q, want %q", lang, got, want)
		}
	}
}

func TestCatalog_RequiresDefault(t *testing.T) {
	fsys := fstest.MapFS{"locales/en.yaml": {Data: []byte("lang: en")}}
	if _, err := NewCatalog(fsys, "en"); err == nil {
		t.Fatal("expected error without the default language")
	}
}

func TestEmbeddedLocalesHaveSameKeys(t *testing.T) {
	c, err := NewCatalog(LocalesFS, "es", "en")
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	es, en := c.For("es"), c.For("en")
	for k := range es.translations {
		if _, ok := en.translations[k]; !ok {
			t.Errorf("key %q missing from en", k)
		}
	}
	if !strings.Contains(es.T("success_body", "a@b.co"), "a@b.co") {
		t.Error("success_body should include the contact")
	}
}
