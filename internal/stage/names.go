package stage

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"aurax/internal/config"
)

// Name identifies a pipeline stage.
type Name string

const (
	IntentAnalysis    Name = config.StageIntentAnalysis
	Generation        Name = config.StageGeneration
	Arrangement       Name = config.StageArrangement
	Mixing            Name = config.StageMixing
	Mastering         Name = config.StageMastering
	QualityEvaluation Name = config.StageQualityEvaluation
	PromptEnhancement Name = config.StagePromptEnhancement
	StemSeparation    Name = config.StageStemSeparation
)

var attemptOrder = []Name{
	IntentAnalysis,
	Generation,
	Arrangement,
	Mixing,
	Mastering,
	QualityEvaluation,
}

// AttemptOrder returns the stages of one attempt in execution order.
func AttemptOrder() []Name {
	return append([]Name(nil), attemptOrder...)
}

// Index returns the 1-based position of name within an attempt, or 0 for
// stages that run outside the attempt sequence.
func Index(name Name) int {
	for i, n := range attemptOrder {
		if n == name {
			return i + 1
		}
	}
	return 0
}

// Label renders a stage name for humans ("quality_evaluation" -> "Quality Evaluation").
func Label(name Name) string {
	if name == "" {
		return ""
	}
	return cases.Title(language.Und).String(strings.ReplaceAll(string(name), "_", " "))
}
