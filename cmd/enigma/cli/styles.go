package cli

import (
	"image/color"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/fang"
)

var (
	colorPrimary   = lipgloss.Color("#2563EB")
	colorSecondary = lipgloss.Color("#06B6D4")
	colorSuccess   = lipgloss.Color("#10B981")
	colorWarning   = lipgloss.Color("#F59E0B")
	colorError     = lipgloss.Color("#EF4444")
	colorMuted     = lipgloss.Color("#6B7280")
	colorText      = lipgloss.Color("#F9FAFB")
	colorTextDim   = lipgloss.Color("#9CA3AF")
)

var (
	titleStyle   = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	sectionStyle = lipgloss.NewStyle().Foreground(colorSecondary).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(colorTextDim)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	successStyle = lipgloss.NewStyle().Foreground(colorSuccess)
	warnStyle    = lipgloss.NewStyle().Foreground(colorWarning)
)

var boxStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorMuted).
	Padding(0, 1)

func keyValue(key, value string) string {
	return dimStyle.Render(key+": ") + value
}

func bullet(s string) string {
	return mutedStyle.Render("•") + " " + s
}

func checkMark() string { return successStyle.Render("✓") }

// FangColorScheme maps the CLI palette onto fang's help and error output.
func FangColorScheme(c lipgloss.LightDarkFunc) fang.ColorScheme {
	return fang.ColorScheme{
		Base:           colorText,
		Title:          colorPrimary,
		Description:    colorTextDim,
		Codeblock:      c(lipgloss.Color("#1F2937"), lipgloss.Color("#2F2E36")),
		Program:        colorSecondary,
		DimmedArgument: colorMuted,
		Comment:        colorMuted,
		Flag:           colorSuccess,
		FlagDefault:    colorTextDim,
		Command:        colorPrimary,
		QuotedString:   colorSecondary,
		Argument:       colorText,
		Help:           colorTextDim,
		Dash:           colorMuted,
		ErrorHeader:    [2]color.Color{colorText, colorError},
		ErrorDetails:   colorError,
	}
}
