package ws

import (
	"regexp"
	"strings"
)

const previewMaxLen = 120

// ansiPattern matches ANSI escape sequences: CSI, OSC, DCS/PM/APC
// strings, private mode switches and charset selection.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]|\x1b\][^\x07]*\x07|\x1b[PX^_][^\x1b]*\x1b\\|\x1b\[\?[0-9]+[hl]|\x1b\(B`)

// stripANSI removes ANSI escape sequences from the input.
func stripANSI(data []byte) []byte {
	return ansiPattern.ReplaceAll(data, nil)
}

// ExtractPreviewLine returns the last non-empty plain-text line of a
// chunk of terminal output, truncated for display in session lists.
// It returns "" when the chunk holds no printable text.
func ExtractPreviewLine(data []byte) string {
	clean := string(stripANSI(data))
	clean = strings.ReplaceAll(clean, "\r", "\n")

	lines := strings.Split(clean, "\n")
	for n := len(lines) - 1; n >= 0; n-- {
		line := strings.TrimSpace(lines[n])
		if line == "" {
			continue
		}
		if len(line) > previewMaxLen {
			line = line[:previewMaxLen]
		}
		return line
	}
	return ""
}
