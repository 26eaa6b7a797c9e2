package pipeline

import "dreamwright/internal/domain"

// tracker follows the previous-panel reference through a scene's sequential
// render. It holds the path of the most recent artifact and the ids of the
// characters that appeared in it, so the next panel can anchor returning
// characters to the previous frame and new arrivals to their reference sheet.
//
// A failed panel never advances the tracker: if panel 2 errors, panel 3 sees
// panel 1 as its predecessor instead of an artifact that does not exist.
type tracker struct {
	path   string
	chars  map[string]struct{}
	seeded bool
}

func newTracker() *tracker {
	return &tracker{chars: map[string]struct{}{}}
}

// seed installs the previous chapter's last panel as the starting reference.
// Only the first panel of the scene will pick it up unflagged.
func (t *tracker) seed(path string, characterIDs []string) {
	t.set(path, characterIDs)
	t.seeded = true
}

// advance records a freshly rendered or already-present artifact as the new
// reference for the next panel.
func (t *tracker) advance(path string, characterIDs []string) {
	t.set(path, characterIDs)
	t.seeded = false
}

func (t *tracker) set(path string, characterIDs []string) {
	t.path = path
	t.chars = make(map[string]struct{}, len(characterIDs))
	for _, id := range characterIDs {
		t.chars[id] = struct{}{}
	}
}

func (t *tracker) hasReference() bool { return t.path != "" }

// use reports whether the panel should render against the tracked reference:
// either the script flagged it as a continuation, or this is the scene's
// opening panel and the reference was seeded from the previous chapter.
func (t *tracker) use(p *domain.Panel) bool {
	if !t.hasReference() {
		return false
	}
	if p.ContinuesFromPrevious {
		return true
	}
	// Cross-chapter seeds only bind the scene's opening panel.
	return t.seeded && p.Number == 1
}

// inReference reports whether the character appeared in the tracked panel.
func (t *tracker) inReference(characterID string) bool {
	_, ok := t.chars[characterID]
	return ok
}
