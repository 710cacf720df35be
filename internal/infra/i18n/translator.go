package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed locales
var LocalesFS embed.FS

// DefaultLang is used when a request asks for no language or an unknown one.
const DefaultLang = "es"

type Translator struct {
	translations map[string]string
}

// NewTranslator loads locales/<langCode>.yaml from fsys.
func NewTranslator(fsys fs.FS, langCode string) (*Translator, error) {
	filePath := path.Join("locales", fmt.Sprintf("%s.yaml", langCode))

	data, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read translation file %s: %w", filePath, err)
	}
	return newTranslatorFromBytes(data)
}

func newTranslatorFromBytes(data []byte) (*Translator, error) {
	var translations map[string]string
	if err := yaml.Unmarshal(data, &translations); err != nil {
		return nil, fmt.Errorf("failed to parse translation file: %w", err)
	}
	return &Translator{translations: translations}, nil
}

// T returns the message for key, formatted with args. Unknown keys are
// returned as-is.
func (t *Translator) T(key string, args ...interface{}) string {
	format, ok := t.translations[key]
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(format, args...)
	}
	return format
}

// Lang is the language code the translator was loaded for.
func (t *Translator) Lang() string {
	if l := t.translations["lang"]; l != "" {
		return l
	}
	return DefaultLang
}

// Catalog holds one translator per supported language.
type Catalog struct {
	byLang map[string]*Translator
}

// NewCatalog loads every language in langs. DefaultLang must be among them.
func NewCatalog(fsys fs.FS, langs ...string) (*Catalog, error) {
	c := &Catalog{byLang: make(map[string]*Translator, len(langs))}
	for _, l := range langs {
		t, err := NewTranslator(fsys, l)
		if err != nil {
			return nil, err
		}
		c.byLang[l] = t
	}
	if _, ok := c.byLang[DefaultLang]; !ok {
		return nil, fmt.Errorf("default language %q not loaded", DefaultLang)
	}
	return c, nil
}

// For picks the translator for lang, falling back to DefaultLang. Region
// suffixes ("en-US") are ignored.
func (c *Catalog) For(lang string) *Translator {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	if t, ok := c.byLang[lang]; ok {
		return t
	}
	return c.byLang[DefaultLang]
}
