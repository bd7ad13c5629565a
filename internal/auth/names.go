package auth

import (
	"math/rand"
	"strings"
	"unicode/utf8"
)

var nameColors = []string{
	"amber", "aqua", "azure", "beige", "black", "blue", "bronze", "brown",
	"coral", "crimson", "cyan", "gold", "gray", "green", "indigo", "ivory",
	"jade", "lavender", "lime", "magenta", "maroon", "olive", "orange",
	"pink", "plum", "purple", "red", "salmon", "silver", "tan", "teal",
	"turquoise", "violet", "white", "yellow",
}

var nameAnimals = []string{
	"albatross", "badger", "beaver", "bison", "camel", "cheetah", "cobra",
	"crane", "dolphin", "eagle", "falcon", "ferret", "fox", "gazelle",
	"gecko", "heron", "ibis", "jaguar", "koala", "lemur", "lynx", "marmot",
	"narwhal", "ocelot", "otter", "panda", "panther", "puffin", "quail",
	"raven", "salmon", "seal", "tiger", "toucan", "walrus", "wolf", "yak",
	"zebra",
}

// MaxNameRunes is the longest user name the store accepts.
const MaxNameRunes = 32

// RandomSuffix returns a "<color>_<animal>" pair.
func RandomSuffix() string {
	return nameColors[rand.Intn(len(nameColors))] + "_" + nameAnimals[rand.Intn(len(nameAnimals))]
}

// DisambiguatedName appends suffix to base, trimming base so the result
// fits in MaxNameRunes.
func DisambiguatedName(base, suffix string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = "user"
	}
	room := MaxNameRunes - utf8.RuneCountInString(suffix) - 1
	if room < 1 {
		room = 1
	}
	if r := []rune(base); len(r) > room {
		base = string(r[:room])
	}
	return base + "_" + suffix
}
