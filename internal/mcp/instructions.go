package mcp

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// maxInstructionsBytes caps how much of the supplementary instructions
// file is prepended to a prompt.
const maxInstructionsBytes = 16 << 10

// withInstructions prepends the configured supplementary instructions file
// to the prompt. A missing file is fine; an unreadable, oversized, or
// malformed one yields an advisory warning instead of a failure, since the
// prompt itself is still usable.
func (h *handler) withInstructions(prompt string) (string, []string) {
	path := h.cfg.Instructions
	if path == "" {
		return prompt, nil
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(h.workspace, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return prompt, nil
		}
		return prompt, []string{fmt.Sprintf("instructions file %s could not be read: %v", path, err)}
	}

	var warns []string
	if len(data) > maxInstructionsBytes {
		cut := maxInstructionsBytes
		// Back up to a rune boundary so the cut cannot corrupt the text.
		for cut > 0 && !utf8.RuneStart(data[cut]) {
			cut--
		}
		data = data[:cut]
		warns = append(warns, fmt.Sprintf("instructions file %s truncated to %d bytes", path, maxInstructionsBytes))
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return prompt, warns
	}
	if !utf8.ValidString(text) {
		warns = append(warns, fmt.Sprintf("instructions file %s is not valid UTF-8; content skipped", path))
		return prompt, warns
	}

	return text + "\n\n" + prompt, warns
}
