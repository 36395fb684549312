// Package filetype classifies artifact files by extension.
package filetype

import (
	"strings"

	"github.com/0xmhha/runmirror/pkg/coord"
)

// Type is the content type of a file on disk.
type Type string

// File types. None means the file is ignored.
const (
	None     Type = ""
	JSON     Type = "json"
	Log      Type = "log"
	Text     Type = "text"
	Markdown Type = "markdown"
	Image    Type = "image"
)

type group struct {
	typ        Type
	extensions []string
}

// groups is matched in order; the first hit wins.
var groups = []group{
	{JSON, []string{".json"}},
	{Log, []string{".log"}},
	{Text, []string{".txt", ".text"}},
	{Markdown, []string{".markdown", ".mdown", ".mkdn", ".mkd", ".md"}},
	{Image, []string{
		".jpg", ".jpeg", ".jpe", ".jif", ".jfif", ".jfi",
		".png", ".gif", ".tiff", ".tif", ".bmp", ".dib",
		".heif", ".heic",
		".jp2", ".j2k", ".jpf", ".jpx", ".jpm", ".mj2",
	}},
}

// multiFrame lists image extensions that may carry several frames.
var multiFrame = []string{".gif", ".tiff", ".tif"}

// Classify returns the type of a file name, or None.
func Classify(name string) Type {
	lower := strings.ToLower(name)
	for _, g := range groups {
		for _, ext := range g.extensions {
			if strings.HasSuffix(lower, ext) {
				return g.typ
			}
		}
	}
	return None
}

// IsMultiFrame reports whether the image must be read preserving all frames.
func IsMultiFrame(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range multiFrame {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// Kinds returns the store kinds a file of type t can produce.
func Kinds(t Type) []coord.Kind {
	switch t {
	case JSON:
		return []coord.Kind{coord.KindScalars, coord.KindTexts, coord.KindImages}
	case Image:
		return []coord.Kind{coord.KindImages}
	case Text:
		return []coord.Kind{coord.KindTexts}
	case Log:
		return []coord.Kind{coord.KindLogs}
	case Markdown:
		return []coord.Kind{coord.KindMarkdown}
	default:
		return nil
	}
}
