// Package categories holds the fixed wallpaper category tables. Each key is
// the lowercase identifier used in filenames, counters and callback URLs; the
// label is the descriptive text shown to users and fed to the prompt composer.
//
// The tables are built once at package init and never mutated.
package categories

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"sort"
	"strings"
)

// Mode distinguishes light and dark wallpaper sets.
type Mode string

const (
	Light Mode = "light"
	Dark  Mode = "dark"
)

// darkFallbackLabel is used for dark-mode prompts when a key has no label.
const darkFallbackLabel = "Dark mode wallpaper"

var light = map[string]string{
	"shizen":      "Serene Japanese nature scenes, including cherry blossoms, Mount Fuji, and zen gardens",
	"ukiyoe":      "Traditional ukiyo-e style artwork and woodblock prints",
	"minimaru":    "Minimalist designs inspired by Japanese aesthetics",
	"tokai":       "Modern Japanese cityscapes, including Tokyo skylines and neon-lit streets",
	"uchuu":       "Space and celestial imagery with a Japanese artistic twist",
	"sumieart":    "Expressive sumi-e (ink wash painting) inspired illustrations",
	"origami":     "Geometric patterns and designs based on origami art",
	"washi":       "Textured backgrounds reminiscent of traditional Japanese washi paper",
	"nihonga":     "Contemporary Japanese-style paintings (Nihonga)",
	"kisetsu":     "Seasonal themes reflecting Japan's four distinct seasons",
	"dentoubunka": "Traditional Japanese cultural elements like kimonos, tea ceremonies, and festivals",
	"nihonchiri":  "Diverse landscapes showcasing Japan's geographical beauty",
	"kenchiku":    "Traditional and modern Japanese architectural designs",
	"neonwaku":    "Cyberpunk-inspired neon cityscapes with a Japanese flair",
	"kawaii":      "Cute and charming designs in the kawaii style",
	"monokuro":    "Elegant black and white compositions inspired by ink paintings",
	"youkai":      "Mythical Japanese creatures and folklore-inspired themes",
	"mizuiro":     "Watercolor-style paintings with a Japanese aesthetic",
	"anime":       "Popular anime and manga-inspired artwork",
	"shodo":       "Mesmerizing patterns based on Japanese calligraphy",
	"mirai":       "Futuristic Japanese cityscapes and technology concepts",
	"kineticart":  "Dynamic and animated designs inspired by Japanese kinetic art",
	"wagara":      "Traditional Japanese patterns and motifs",
}

var dark = map[string]string{
	"yorunomachi":  "Night cityscapes of Japan, neon-lit streets, and illuminated landmarks",
	"tsukimi":      "Moon-viewing scenes, featuring the moon over traditional Japanese landscapes",
	"kagedoukutsu": "Shadowy abstract patterns inspired by traditional Japanese aesthetics",
	"youkaiworld":  "Mysterious and ethereal scenes of Japanese folklore and supernatural creatures",
	"kurayami":     "Minimalist designs emphasizing negative space and subtle, dark tones",
	"gekkouen":     "Nighttime Japanese gardens and nature scenes under moonlight",
	"denshipunk":   "Futuristic, cyberpunk-inspired Japanese cityscapes with glowing elements",
}

// Sorted key lists, built once so RandomKey and Keys are deterministic in order.
var (
	lightKeys = sortedKeys(light)
	darkKeys  = sortedKeys(dark)
)

var keyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Normalize trims and lowercases a raw category and checks that it is safe to
// embed in a filename, storage key and callback query string.
func Normalize(raw string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return "", fmt.Errorf("category is required")
	}
	if !keyPattern.MatchString(key) {
		return "", fmt.Errorf("invalid category %q", raw)
	}
	return key, nil
}

// Label returns the human-readable label for key, falling back to the key
// itself for categories outside the fixed tables.
func Label(key string) string {
	key = strings.ToLower(key)
	if v, ok := light[key]; ok {
		return v
	}
	if v, ok := dark[key]; ok {
		return v
	}
	return key
}

// PromptLabel is Label, except that unknown dark-mode keys get a generic
// dark-mode description rather than the bare key.
func PromptLabel(key string, mode Mode) string {
	if mode == Dark {
		if v, ok := dark[strings.ToLower(key)]; ok {
			return v
		}
		return darkFallbackLabel
	}
	return Label(key)
}

// IsDark reports whether key belongs to the dark-mode table.
func IsDark(key string) bool {
	_, ok := dark[strings.ToLower(key)]
	return ok
}

// ModeOf returns Dark for dark-table keys and Light for everything else.
func ModeOf(key string) Mode {
	if IsDark(key) {
		return Dark
	}
	return Light
}

// ParseMode accepts "light" or "dark".
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case Light:
		return Light, nil
	case Dark:
		return Dark, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// Keys returns the sorted keys of the table for mode.
func Keys(mode Mode) []string {
	src := lightKeys
	if mode == Dark {
		src = darkKeys
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// RandomKey picks a uniformly random key from the table for mode.
func RandomKey(mode Mode) string {
	keys := lightKeys
	if mode == Dark {
		keys = darkKeys
	}
	return keys[rand.IntN(len(keys))]
}
