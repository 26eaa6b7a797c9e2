package pipeline

import (
	"fmt"
	"strings"

	"dreamwright/internal/domain"
)

// panelPromptInput bundles everything the panel prompt needs.
type panelPromptInput struct {
	Panel      *domain.Panel
	Scene      *domain.Scene
	Characters map[string]*domain.Character
	Location   *domain.Location
	Style      string

	// UseContinuity marks that the previous panel image rides along as a
	// reference; InPrevious tells per character whether they appeared in it.
	UseContinuity bool
	InPrevious    func(characterID string) bool
}

func buildPanelPrompt(in panelPromptInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Create a webtoon/manga panel in %s art style.\n\n", in.Style)

	b.WriteString("## ATMOSPHERE & MOOD\n")
	b.WriteString(lightingDescription(in.Scene.TimeOfDay))
	b.WriteString("\n")

	if in.UseContinuity {
		b.WriteString(`
## VISUAL CONTINUITY (CRITICAL)
This panel continues from the previous panel. You MUST maintain consistency:

KEEP IDENTICAL:
- Art style, line weight, coloring technique
- Character appearance (face, hair, clothes, accessories)
- Color palette and lighting direction
- Background style and detail level
- PROPS AND OBJECTS: Any items (bags, boxes, food, weapons, etc.) must have the EXACT same shape, color, and design as in the previous panel

CREATE NEW:
- Fresh pose and body position for this action
- New camera angle as specified
- Natural progression of the scene
`)
		if in.Panel.ContinuityNote != "" {
			fmt.Fprintf(&b, "\nSPECIFIC CONTINUITY: %s\n", in.Panel.ContinuityNote)
		}
		b.WriteString("\nIMPORTANT: If a prop/object appeared in the previous panel (e.g., a takeout bag, box, or item being handed over), it MUST look identical in this panel - same shape, color, wrapping, and details.\n")
	}

	b.WriteString("\n## COMPOSITION\n")
	fmt.Fprintf(&b, "- Shot: %s\n", shotDescription(in.Panel.Composition.ShotType, len(in.Panel.Characters) > 0))
	fmt.Fprintf(&b, "- Angle: %s\n", angleDescription(in.Panel.Composition.Angle))
	fmt.Fprintf(&b, "- Location: %s\n", locationLine(in.Location))

	if len(in.Panel.Characters) > 0 {
		b.WriteString(`
## CHARACTERS (CRITICAL: Match reference images EXACTLY)
For each character, you MUST:
- Use the EXACT same costume/outfit as shown in their reference image
- Match hair color, style, and accessories exactly
- Keep facial features consistent with reference
- Only change: expression, pose, and camera angle as specified

`)
		for _, pc := range in.Panel.Characters {
			inPrev := in.InPrevious != nil && in.InPrevious(pc.CharacterID)
			b.WriteString(characterDescription(pc, in.Characters[pc.CharacterID], inPrev))
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(&b, "\n## ACTION & EMOTION\n%s\n", in.Panel.Action)

	b.WriteString(`
## VISUAL EFFECTS (if appropriate)
- Motion lines for movement
- Speed lines for action
- Sparkles/glow for magical/emotional moments
- Dramatic lighting for tension

## TECHNICAL REQUIREMENTS
- FULL BLEED composition (art to all edges, NO white borders)
- NO text, speech bubbles, or sound effects in image
- Clean professional linework
- Expressive faces with clear emotions
- Dynamic poses with weight and balance
- Rich background detail that supports the mood`)

	return b.String()
}

func lightingDescription(tod domain.TimeOfDay) string {
	switch tod {
	case domain.TimeOfDayMorning:
		return "LIGHTING: Early morning - soft diffused light, pale yellows and pinks, gentle shadows, dew-fresh feel\n"
	case domain.TimeOfDayEvening:
		return "LIGHTING: Golden hour/sunset - rich orange and amber tones, long dramatic shadows, warm nostalgic feel\n"
	case domain.TimeOfDayNight:
		return "LIGHTING: Night scene - cool blue moonlight or warm artificial lights, deep shadows, high contrast\n"
	default:
		return "LIGHTING: Bright natural daylight - warm golden tones, soft shadows, clear visibility\n"
	}
}

func shotDescription(shot domain.ShotType, hasCharacters bool) string {
	if hasCharacters {
		switch shot {
		case domain.ShotWide:
			return "wide establishing shot showing full environment and characters"
		case domain.ShotCloseUp:
			return "close-up shot focusing on face and expressions"
		case domain.ShotExtremeCloseUp:
			return "extreme close-up on specific detail (eyes, hands, object)"
		default:
			return "medium shot showing characters from waist up"
		}
	}
	switch shot {
	case domain.ShotWide:
		return "wide establishing shot showing full environment"
	case domain.ShotCloseUp:
		return "close-up shot focusing on the subject or detail"
	case domain.ShotExtremeCloseUp:
		return "extreme close-up on specific detail or object"
	default:
		return "medium shot showing the scene"
	}
}

func angleDescription(angle domain.CameraAngle) string {
	switch angle {
	case domain.AngleHigh:
		return "high angle looking down, shows vulnerability or overview"
	case domain.AngleLow:
		return "low angle looking up, shows power or grandeur"
	case domain.AngleDutch:
		return "dutch angle (tilted), creates tension or unease"
	default:
		return "eye level, straight on view"
	}
}

func locationLine(loc *domain.Location) string {
	if loc == nil {
		return "unspecified"
	}
	line := loc.Name
	if loc.Description != "" {
		line += fmt.Sprintf(" (%s)", loc.Description)
	}
	if len(loc.VisualTags) > 0 {
		tags := loc.VisualTags
		if len(tags) > 4 {
			tags = tags[:4]
		}
		line += " - Visual elements: " + strings.Join(tags, ", ")
	}
	return line
}

// characterDescription renders one character block. The priority note steers
// the model between the previous panel and the reference sheet: a character
// carried over from the previous frame must match it, a newcomer has only
// their sheet to go on.
func characterDescription(pc domain.PanelCharacter, char *domain.Character, inPrevious bool) string {
	var lines []string

	if char != nil {
		priority := "Priority: CHARACTER REFERENCE SHEET (highest - not in previous panel)"
		if inPrevious {
			priority = "Priority: PREVIOUS PANEL (match exactly)"
		}
		lines = append(lines, fmt.Sprintf("**%s** (%s)", char.Name, priority))
		if char.Description.Physical != "" {
			lines = append(lines, "  Physical: "+char.Description.Physical)
		}
		for _, tag := range char.VisualTags {
			lines = append(lines, "  - "+tag)
		}
	} else {
		lines = append(lines, "Character")
	}

	lines = append(lines, "  Expression: "+pc.Expression)
	if pc.Pose != "" {
		lines = append(lines, "  Pose: "+pc.Pose)
	}
	lines = append(lines, fmt.Sprintf("  Position: %s of frame", pc.Position))

	return strings.Join(lines, "\n")
}
