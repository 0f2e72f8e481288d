// Package language guesses the language of inbound customer text.
package language

import (
	"strings"

	"github.com/pemistahl/lingua-go"
	"go.uber.org/zap"
)

// DefaultFallback is returned whenever detection fails.
const DefaultFallback = "ru"

var supported = []lingua.Language{
	lingua.English,
	lingua.Russian,
	lingua.Kazakh,
	lingua.Ukrainian,
	lingua.Spanish,
	lingua.Portuguese,
	lingua.German,
	lingua.French,
	lingua.Turkish,
	lingua.Uzbek,
}

// Detector returns lowercase ISO 639-1 codes
type Detector struct {
	detect   func(text string) (string, bool)
	fallback string
	logger   *zap.Logger
}

// NewDetector builds a lingua-backed detector. An empty fallback means DefaultFallback.
func NewDetector(fallback string, logger *zap.Logger) *Detector {
	detector := lingua.NewLanguageDetectorBuilder().
		FromLanguages(supported...).
		WithLowAccuracyMode().
		Build()

	return newDetector(func(text string) (string, bool) {
		lang, ok := detector.DetectLanguageOf(text)
		if !ok || lang == lingua.Unknown {
			return "", false
		}
		return lang.IsoCode639_1().String(), true
	}, fallback, logger)
}

func newDetector(detect func(string) (string, bool), fallback string, logger *zap.Logger) *Detector {
	if fallback == "" {
		fallback = DefaultFallback
	}
	return &Detector{detect: detect, fallback: fallback, logger: logger}
}

// Detect never fails: anything the backend cannot classify yields the fallback code.
func (d *Detector) Detect(text string) (code string) {
	if strings.TrimSpace(text) == "" {
		return d.fallback
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("Language detection panicked", zap.Any("panic", r))
			code = d.fallback
		}
	}()

	code, ok := d.detect(text)
	code = strings.ToLower(strings.TrimSpace(code))
	if !ok || code == "" {
		return d.fallback
	}
	return code
}

// Fallback reports the code used when detection fails.
func (d *Detector) Fallback() string {
	return d.fallback
}
