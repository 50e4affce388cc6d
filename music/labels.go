package music

import (
	"golang.org/x/text/language"
)

type labels struct {
	play, stop string
}

var (
	labelTags = []language.Tag{language.English, language.Spanish}
	labelSets = []labels{
		{play: "Play music", stop: "Stop music"},
		{play: "Reproducir música", stop: "Detener música"},
	}
	labelMatcher = language.NewMatcher(labelTags)
)

// Label returns the accessible label of the toggle: the action that
// toggling would take, in the best match for locale. Unknown locales get
// English.
func Label(locale string, playing bool) string {
	_, index := language.MatchStrings(labelMatcher, locale)
	l := labelSets[index]
	if playing {
		return l.stop
	}
	return l.play
}
