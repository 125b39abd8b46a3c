package analysis

import (
	"math"
	"strings"
	"unicode"

	"github.com/jdkato/prose/v2"
)

// Fillers in the order they are reported. Two-word fillers are matched on
// adjacent tokens.
var Fillers = []string{
	"um", "uh", "like", "you know", "i mean", "basically",
	"actually", "literally", "kind of", "sort of", "so",
}

const (
	slowPaceWPM = 110
	fastPaceWPM = 170
)

type SpeakingAnalysis struct {
	WordsPerMinute   *float64       `json:"words_per_minute"`
	TotalWords       int            `json:"total_words"`
	FillerWords      map[string]int `json:"filler_words"`
	TotalFillerCount int            `json:"total_filler_count"`
	FillerPercentage float64        `json:"filler_percentage"`
	PaceFeedback     string         `json:"speaking_pace_feedback"`
	FillerFeedback   string         `json:"filler_word_feedback"`
}

// Words tokenizes text and returns the lower-cased word tokens, dropping
// punctuation and contraction suffixes such as "n't" and "'s".
func Words(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithSegmentation(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return strings.Fields(strings.ToLower(text))
	}

	var words []string
	for _, tok := range doc.Tokens() {
		w := strings.ToLower(tok.Text)
		if !hasLetterOrDigit(w) || isContractionSuffix(w) {
			continue
		}
		words = append(words, w)
	}
	return words
}

func CountWords(text string) int {
	return len(Words(text))
}

// AnalyzeSpeaking measures pace and filler usage. duration may be nil when
// the transcription service did not report it, in which case no pace is
// computed.
func AnalyzeSpeaking(transcript string, duration *float64) SpeakingAnalysis {
	words := Words(transcript)
	result := SpeakingAnalysis{
		TotalWords:  len(words),
		FillerWords: map[string]int{},
	}

	for i := 0; i < len(words); i++ {
		if i+1 < len(words) {
			pair := words[i] + " " + words[i+1]
			if isFiller(pair) {
				result.FillerWords[pair]++
				result.TotalFillerCount++
				i++
				continue
			}
		}
		if isFiller(words[i]) {
			result.FillerWords[words[i]]++
			result.TotalFillerCount++
		}
	}

	if result.TotalWords > 0 {
		result.FillerPercentage = round1(float64(result.TotalFillerCount) / float64(result.TotalWords) * 100)
	}

	if duration != nil && *duration > 0 && result.TotalWords > 0 {
		wpm := round1(float64(result.TotalWords) / (*duration / 60))
		result.WordsPerMinute = &wpm
		result.PaceFeedback = paceFeedback(wpm)
	} else {
		result.PaceFeedback = "Speaking pace unavailable for this answer."
	}

	result.FillerFeedback = fillerFeedback(result.FillerPercentage)

	return result
}

func paceFeedback(wpm float64) string {
	switch {
	case wpm < slowPaceWPM:
		return "Your pace is a bit slow. Try to speak a little faster to keep the interviewer engaged."
	case wpm > fastPaceWPM:
		return "You're speaking quickly. Slow down slightly so each point lands clearly."
	default:
		return "Great pace. You're speaking at a comfortable, easy-to-follow speed."
	}
}

func fillerFeedback(pct float64) string {
	switch {
	case pct < 2:
		return "Excellent! Minimal filler words. Your delivery is clear and confident."
	case pct < 5:
		return "Moderate filler word usage. Pausing briefly instead of filling silence will sound more polished."
	default:
		return "High filler word usage. Practice pausing instead of using words like 'um' and 'like'."
	}
}

func isFiller(w string) bool {
	for _, f := range Fillers {
		if f == w {
			return true
		}
	}
	return false
}

func isContractionSuffix(w string) bool {
	return w == "n't" || strings.HasPrefix(w, "'") || strings.HasPrefix(w, "’")
}

func hasLetterOrDigit(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
