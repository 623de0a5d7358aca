// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed *.json
var translations embed.FS

// TranslateFunc returns the message for id in the bound locale, falling back to
// defaultMessage. Extra args are applied with fmt.Sprintf.
type TranslateFunc func(id, defaultMessage string, args ...any) string

// Init loads the embedded translations. English is the default language.
func Init() *i18n.Bundle {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	files, err := fs.Glob(translations, "*.json")
	if err != nil {
		panic(fmt.Sprintf("failed to list translations: %v", err))
	}
	for _, file := range files {
		if _, err := bundle.LoadMessageFileFS(translations, path.Clean(file)); err != nil {
			panic(fmt.Sprintf("failed to load translation %s: %v", file, err))
		}
	}

	return bundle
}

// LocalizerFunc binds a translate function to locale.
func LocalizerFunc(bundle *i18n.Bundle, locale string) TranslateFunc {
	localizer := i18n.NewLocalizer(bundle, locale)
	return func(id, defaultMessage string, args ...any) string {
		message, err := localizer.Localize(&i18n.LocalizeConfig{
			DefaultMessage: &i18n.Message{
				ID:    id,
				Other: defaultMessage,
			},
		})
		if err != nil || message == "" {
			message = defaultMessage
		}
		if len(args) > 0 {
			return fmt.Sprintf(message, args...)
		}
		return message
	}
}

// MatchLocale picks the best supported locale for an Accept-Language header.
func MatchLocale(bundle *i18n.Bundle, acceptLanguage, fallback string) string {
	if acceptLanguage == "" {
		return fallback
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return fallback
	}

	supported := bundle.LanguageTags()
	matcher := language.NewMatcher(supported)
	_, index, confidence := matcher.Match(tags...)
	if confidence == language.No {
		return fallback
	}

	base, _ := supported[index].Base()
	return base.String()
}
