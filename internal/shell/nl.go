package shell

import (
	"fmt"
	"regexp"
	"strings"
)

// The translator recognizes a handful of common English phrasings and maps
// them onto builtin commands. It is deliberately heuristic; anything it
// does not recognize runs unchanged.

var nlKeywords = regexp.MustCompile(`(?i)\b(create|make|move|delete|remove|show|list|display|open|read|copy|rename)\b`)

// IsNaturalLanguage reports whether the input looks like an English
// sentence rather than a command line.
func IsNaturalLanguage(line string) bool {
	return nlKeywords.MatchString(line)
}

var (
	nlMkdir   = regexp.MustCompile(`(?:create|make|new)\s+(?:a\s+)?(?:new\s+)?(?:folder|directory)\s+(?:called\s+|named\s+)?["']?([^\s"']+)["']?`)
	nlTouch   = regexp.MustCompile(`(?:create|make|new)\s+(?:a\s+)?(?:new\s+)?file\s+(?:called\s+|named\s+)?["']?([^\s"']+)["']?`)
	nlMove    = regexp.MustCompile(`move\s+["']?([^\s"']+)["']?\s+(?:into|to)\s+["']?([^\s"']+)["']?`)
	nlCopy    = regexp.MustCompile(`copy\s+["']?([^\s"']+)["']?\s+(?:into|to)\s+["']?([^\s"']+)["']?`)
	nlRename  = regexp.MustCompile(`rename\s+["']?([^\s"']+)["']?\s+(?:to|as)\s+["']?([^\s"']+)["']?`)
	nlDelDir  = regexp.MustCompile(`(?:delete|remove)\s+(?:the\s+)?(?:folder|directory)\s+["']?([^\s"']+)["']?`)
	nlDelete  = regexp.MustCompile(`(?:delete|remove)\s+(?:the\s+)?(?:file\s+)?["']?([^\s"']+)["']?`)
	nlListIn  = regexp.MustCompile(`(?:list|show|display)\s+(?:the\s+)?files\s+in\s+["']?([^\s"']+)["']?`)
	nlList    = regexp.MustCompile(`(?:list|show|display)\s+(?:the\s+)?files`)
	nlReadTxt = regexp.MustCompile(`(?:read|show|open|display)\s+(?:the\s+)?(?:file\s+|contents\s+of\s+)["']?([^\s"']+)["']?`)
	nlProcs   = regexp.MustCompile(`(?:show|list|display)\s+(?:the\s+)?processes`)
	nlCPU     = regexp.MustCompile(`(?:show|display)\s+(?:the\s+)?cpu`)
	nlMem     = regexp.MustCompile(`(?:show|display)\s+(?:the\s+)?memory`)
	nlDisk    = regexp.MustCompile(`(?:show|display)\s+(?:the\s+)?disk`)
)

// Translate maps a sentence onto a command line. The boolean reports
// whether a translation was found.
func Translate(line string) (string, bool) {
	t := strings.ToLower(strings.TrimSpace(line))

	if m := nlMkdir.FindStringSubmatch(t); m != nil {
		return "mkdir " + m[1], true
	}
	if m := nlTouch.FindStringSubmatch(t); m != nil {
		return "touch " + m[1], true
	}
	if m := nlMove.FindStringSubmatch(t); m != nil {
		return fmt.Sprintf("mv %s %s", m[1], m[2]), true
	}
	if m := nlCopy.FindStringSubmatch(t); m != nil {
		return fmt.Sprintf("cp %s %s", m[1], m[2]), true
	}
	if m := nlRename.FindStringSubmatch(t); m != nil {
		return fmt.Sprintf("mv %s %s", m[1], m[2]), true
	}
	if m := nlDelDir.FindStringSubmatch(t); m != nil {
		return "rm -r " + m[1], true
	}
	if nlProcs.MatchString(t) {
		return "ps", true
	}
	if nlCPU.MatchString(t) {
		return "cpu", true
	}
	if nlMem.MatchString(t) {
		return "mem", true
	}
	if nlDisk.MatchString(t) {
		return "df", true
	}
	if m := nlListIn.FindStringSubmatch(t); m != nil {
		return "ls " + m[1], true
	}
	if nlList.MatchString(t) {
		return "ls", true
	}
	if m := nlReadTxt.FindStringSubmatch(t); m != nil {
		return "cat " + m[1], true
	}
	if m := nlDelete.FindStringSubmatch(t); m != nil {
		return "rm " + m[1], true
	}
	return "", false
}
