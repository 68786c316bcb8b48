package resolver

import (
	"strings"

	"github.com/desertthunder/playgen/internal/models"
)

// mentionSeparators split "title <sep> artist" mentions, tried in order.
var mentionSeparators = []string{" - ", " by ", " ft. ", " feat. "}

// ParseMention splits a free-text mention into title and artist.
//
// The first separator present splits the mention at its first occurrence. Without a separator the words are
// split at the midpoint, first half as title, which is a guess. A single word yields an empty artist.
func ParseMention(mention string) models.ParsedMention {
	mention = strings.TrimSpace(mention)

	for _, sep := range mentionSeparators {
		if title, artist, ok := strings.Cut(mention, sep); ok {
			return models.ParsedMention{
				Title:  strings.TrimSpace(title),
				Artist: strings.TrimSpace(artist),
			}
		}
	}

	words := strings.Fields(mention)
	if len(words) < 2 {
		return models.ParsedMention{Title: mention}
	}

	mid := len(words) / 2
	return models.ParsedMention{
		Title:  strings.Join(words[:mid], " "),
		Artist: strings.Join(words[mid:], " "),
	}
}
