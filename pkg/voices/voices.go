// Package voices resolves caller-supplied voice names against the voices an
// output module actually advertises. Callers rarely know the module's exact
// identifiers ("en-US", "de+whisper"), so resolution is approximate:
// candidates are ranked by Jaro-Winkler similarity over normalised names,
// with language tags considered as aliases.
package voices

import (
	"errors"
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/voxmux/voxmux/pkg/output"
)

// ErrNoMatch is returned when no advertised voice is similar enough to the
// requested name.
var ErrNoMatch = errors.New("voices: no matching voice")

// defaultThreshold is the minimum Jaro-Winkler score for an approximate
// match to be accepted.
const defaultThreshold = 0.78

// Match resolves name against the available voices. Exact matches (on name
// or language tag, case-insensitive) win outright; otherwise the voice with
// the highest Jaro-Winkler similarity above the acceptance threshold is
// chosen. Returns [ErrNoMatch] when nothing qualifies.
func Match(name string, available []output.Voice) (output.Voice, error) {
	if len(available) == 0 {
		return output.Voice{}, fmt.Errorf("%w: module advertises no voices", ErrNoMatch)
	}
	want := normalise(name)
	if want == "" {
		return output.Voice{}, fmt.Errorf("%w: empty voice name", ErrNoMatch)
	}

	// Exact name or language match first.
	for _, v := range available {
		if normalise(v.Name) == want || normalise(v.Language) == want {
			return v, nil
		}
	}

	best := output.Voice{}
	bestScore := 0.0
	for _, v := range available {
		score := similarity(want, v)
		if score > bestScore {
			best, bestScore = v, score
		}
	}
	if bestScore < defaultThreshold {
		return output.Voice{}, fmt.Errorf("%w: %q (best candidate %q scored %.2f)",
			ErrNoMatch, name, best.Name, bestScore)
	}
	return best, nil
}

// similarity scores the requested name against every alias of v and returns
// the best score.
func similarity(want string, v output.Voice) float64 {
	score := jaroWinkler(want, normalise(v.Name))
	if v.Language != "" {
		if s := jaroWinkler(want, normalise(v.Language)); s > score {
			score = s
		}
	}
	if v.Variant != "" {
		combined := normalise(v.Name + " " + v.Variant)
		if s := jaroWinkler(want, combined); s > score {
			score = s
		}
	}
	return score
}

// jaroWinkler wraps matchr with the conventional parameters (long-string
// boost off, standard prefix scale).
func jaroWinkler(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	return matchr.JaroWinkler(a, b, false)
}

// normalise lowercases and strips separator noise so "English (US)" and
// "english-us" compare equal.
func normalise(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	repl := strings.NewReplacer("_", " ", "-", " ", "(", "", ")", "", "+", " ", ".", " ")
	return strings.Join(strings.Fields(repl.Replace(s)), " ")
}
