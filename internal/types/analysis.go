package types

// AnalysisKind selects what the image analyzer should focus on.
type AnalysisKind string

const (
	// AnalysisKindStore covers shop fronts, sights and street scenes.
	AnalysisKindStore AnalysisKind = "store"
	// AnalysisKindMenu reads and translates menus and signboards.
	AnalysisKindMenu AnalysisKind = "menu"
)

// DefaultAnalysisLanguage is used when the caller sends no language or one
// the analyzer has no prompt for.
const DefaultAnalysisLanguage = "ja"

var supportedLanguages = map[string]bool{
	"ja":    true,
	"en":    true,
	"ko":    true,
	"zh":    true,
	"zh-tw": true,
}

// IsSupportedLanguage reports whether lang has its own prompt.
func IsSupportedLanguage(lang string) bool { return supportedLanguages[lang] }

// AnalysisRequest is one chargeable image analysis. Language is not
// validated: unknown values fall back to DefaultAnalysisLanguage.
type AnalysisRequest struct {
	ImageBase64 string       `json:"image" validate:"required"`
	Language    string       `json:"language" validate:"omitempty,max=16"`
	Kind        AnalysisKind `json:"type" validate:"omitempty,oneof=store menu"`
}

// Normalized returns r with the default kind and language applied.
func (r AnalysisRequest) Normalized() AnalysisRequest {
	if r.Kind == "" {
		r.Kind = AnalysisKindStore
	}
	if !IsSupportedLanguage(r.Language) {
		r.Language = DefaultAnalysisLanguage
	}
	return r
}

// AnalysisResult is the analyzer's answer plus the caller's updated usage.
type AnalysisResult struct {
	Text     string    `json:"analysis"`
	Model    string    `json:"model"`
	Language string    `json:"language"`
	Usage    *Decision `json:"usage,omitempty"`
}
