package ui

import "github.com/gdamore/tcell/v2"

// Theme colors for the TUI.
var (
	ColorBackground      = tcell.NewHexColor(0x1e1e2e)
	ColorBackgroundPanel = tcell.NewHexColor(0x181825)
	ColorPrimary         = tcell.NewHexColor(0x89b4fa) // blue
	ColorAccent          = tcell.NewHexColor(0xcba6f7) // mauve
	ColorText            = tcell.NewHexColor(0xcdd6f4)
	ColorTextMuted       = tcell.NewHexColor(0x6c7086)
	ColorSuccess         = tcell.NewHexColor(0xa6e3a1) // green
	ColorWarning         = tcell.NewHexColor(0xf9e2af) // yellow
	ColorError           = tcell.NewHexColor(0xf38ba8) // red
	ColorSelected        = tcell.NewHexColor(0x89b4fa)
	ColorSelectedText    = tcell.NewHexColor(0x1e1e2e)
)

// Status icons
const (
	IconPending     = "○"
	IconFetching    = "◐"
	IconDownloading = "⟳"
	IconAvailable   = "●"
	IconError       = "✗"
	IconUnknown     = "·"
)

// StatusIcon maps an item status label to its icon and color. Labels the
// server invents later fall back to a muted dot.
func StatusIcon(status string) (string, tcell.Color) {
	switch status {
	case "Pending":
		return IconPending, ColorTextMuted
	case "FetchingMeta":
		return IconFetching, ColorAccent
	case "Downloading":
		return IconDownloading, ColorWarning
	case "Available":
		return IconAvailable, ColorSuccess
	case "Error":
		return IconError, ColorError
	default:
		return IconUnknown, ColorText
	}
}

// active reports whether a worker is still busy with the item.
func active(status string) bool {
	return status == "FetchingMeta" || status == "Downloading"
}
