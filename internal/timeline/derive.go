// Package timeline derives the render-ready stage view models from the
// platform stage catalog and an idea's backend-reported position. Both the
// idea-specific and the platform-wide load paths go through Derive, so the
// two can never drift.
package timeline

import (
	"github.com/incuhub/roadmap-sync/internal/models"
)

// PlatformPlaceholderProgress is the progress shown for the first stage in
// the no-idea platform view. The value has no documented business meaning;
// it is preserved verbatim for compatibility with the existing UI.
const PlatformPlaceholderProgress = 50

var palette = []models.StageColors{
	{Base: "#6366F1", Highlight: "#818CF8", Text: "#EEF2FF"},
	{Base: "#0EA5E9", Highlight: "#38BDF8", Text: "#F0F9FF"},
	{Base: "#14B8A6", Highlight: "#2DD4BF", Text: "#F0FDFA"},
}

// Derive maps the ordered catalog onto stage view models given the current
// stage name and its reported progress. An unknown or empty currentStage
// marks nothing completed, current, or next; every stage renders pending.
func Derive(catalog []models.StageDefinition, currentStage string, progressPercent int, links LinkTable) []models.StageViewModel {
	currentIndex := -1
	for i, def := range catalog {
		if def.Name == currentStage {
			currentIndex = i
			break
		}
	}
	if progressPercent < 0 {
		progressPercent = 0
	}
	if progressPercent > 100 {
		progressPercent = 100
	}

	out := make([]models.StageViewModel, 0, len(catalog))
	for i, def := range catalog {
		completed := currentIndex >= 0 && i < currentIndex
		current := i == currentIndex

		status := models.StagePending
		progress := 0
		switch {
		case completed:
			status = models.StageCompleted
			progress = 100
		case current:
			status = models.StageCurrent
			progress = progressPercent
		}

		out = append(out, models.StageViewModel{
			OrdinalID:       i + 1,
			StageName:       def.Name,
			Status:          status,
			ProgressPercent: progress,
			IsCurrent:       current,
			IsCompleted:     completed,
			IsNext:          currentIndex >= 0 && i == currentIndex+1,
			Link:            links.Resolve(def.Name),
			Colors:          palette[i%len(palette)],
			MessageForOwner: def.MessageForOwner,
		})
	}
	return out
}

// PlatformCurrent returns the stage treated as current in the generic
// platform view: the first catalog entry.
func PlatformCurrent(catalog []models.StageDefinition) string {
	if len(catalog) == 0 {
		return ""
	}
	return catalog[0].Name
}
