package core

// Color represents a foreground color for a screen cell.
type Color uint8

// Colors used by the viewer. The numeric ANSI codes live in the tui package.
const (
	ColorDefault Color = iota
	ColorRed
	ColorGreen
	ColorYellow
	ColorBlue
	ColorCyan
	ColorWhite
	ColorOrange
	ColorGray
)
