package pipeline

import "dreamwright/internal/domain"

// PanelOutcome is the per-panel report delivered to run observers.
type PanelOutcome struct {
	ChapterNumber int
	SceneNumber   int
	PanelNumber   int
	AssetKey      string
	Skipped       bool
	Err           error
}

// RunObserver receives progress callbacks during a render run. Implementations
// must be fast; they run inline with generation.
type RunObserver interface {
	SceneStarted(chapterNumber int, scene *domain.Scene)
	PanelStarted(chapterNumber, sceneNumber int, panel *domain.Panel)
	PanelFinished(outcome PanelOutcome)
}

type nopObserver struct{}

func (nopObserver) SceneStarted(int, *domain.Scene)      {}
func (nopObserver) PanelStarted(int, int, *domain.Panel) {}
func (nopObserver) PanelFinished(PanelOutcome)           {}
