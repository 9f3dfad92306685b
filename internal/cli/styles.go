// Package cli provides styled terminal output, progress reporting and the
// line-based decision prompter for the parser.
package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/model"
)

// Palette.
var (
	paprika  = lipgloss.Color("#E58325")
	basil    = lipgloss.Color("#6BBF59")
	saffron  = lipgloss.Color("#F2C14E")
	tomato   = lipgloss.Color("#E4572E")
	sage     = lipgloss.Color("#8FB8A8")
	pepper   = lipgloss.Color("#6B6B6B")
	charcoal = lipgloss.Color("#3A3A3A")
)

// Text styles.
var (
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(paprika).MarginBottom(1)
	SuccessStyle = lipgloss.NewStyle().Foreground(basil)
	WarningStyle = lipgloss.NewStyle().Foreground(saffron)
	ErrorStyle   = lipgloss.NewStyle().Foreground(tomato)
	InfoStyle    = lipgloss.NewStyle().Foreground(sage)
	SubtleStyle  = lipgloss.NewStyle().Foreground(pepper)
	BoldStyle    = lipgloss.NewStyle().Bold(true)
	PromptStyle  = lipgloss.NewStyle().Bold(true).Foreground(paprika)

	// BoxStyle frames pattern details and run summaries.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(charcoal).
			Padding(1, 2)
)

// Icons.
const (
	SuccessIcon = "✓"
	ErrorIcon   = "✗"
	WarningIcon = "⚠️"
	InfoIcon    = "ℹ️"
	KitchenIcon = "🍳"
	ChartIcon   = "📊"
)

var statusStyles = map[model.PatternStatus]lipgloss.Style{
	model.StatusPending:   SubtleStyle,
	model.StatusParsing:   InfoStyle,
	model.StatusMatched:   SuccessStyle,
	model.StatusUnmatched: WarningStyle,
	model.StatusQueued:    InfoStyle,
	model.StatusIgnore:    SubtleStyle,
	model.StatusError:     ErrorStyle,
}

// FormatSuccess prefixes message with a check mark.
func FormatSuccess(message string) string {
	return SuccessStyle.Render(SuccessIcon + " " + message)
}

// FormatError prefixes message with a cross.
func FormatError(message string) string {
	return ErrorStyle.Render(ErrorIcon + " " + message)
}

func FormatWarning(message string) string {
	return WarningStyle.Render(WarningIcon + " " + message)
}

func FormatInfo(message string) string {
	return InfoStyle.Render(InfoIcon + " " + message)
}

// FormatTitle renders a section heading.
func FormatTitle(title string) string {
	return TitleStyle.Render(KitchenIcon + " " + title)
}

// FormatPrompt renders an input prompt with a trailing arrow.
func FormatPrompt(prompt string) string {
	return PromptStyle.Render(prompt + " → ")
}

// FormatStatus renders a status in its color, padded for column output.
func FormatStatus(status model.PatternStatus) string {
	style, ok := statusStyles[status]
	if !ok {
		style = BoldStyle
	}
	return style.Render(fmt.Sprintf("%-9s", status))
}

// RenderBox draws title and content inside a rounded border.
func RenderBox(title, content string) string {
	heading := TitleStyle.UnsetMargins().Render(title)
	return BoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, heading, content))
}
