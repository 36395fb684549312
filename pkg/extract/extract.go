package extract

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/spf13/afero"

	"github.com/0xmhha/runmirror/pkg/coord"
	"github.com/0xmhha/runmirror/pkg/filetype"
	"github.com/0xmhha/runmirror/pkg/logger"
	"github.com/0xmhha/runmirror/pkg/thumbcache"
)

// maxLogLine bounds a single log line.
const maxLogLine = 1024 * 1024

// Extractor reads artifact files.
//
// An Extractor is safe for concurrent use.
type Extractor struct {
	cfg   Config
	fs    afero.Fs
	cache thumbcache.Cache
	log   logger.Logger
}

// New creates an extractor. Zero config fields take their defaults; a nil
// cache disables thumbnail caching.
func New(cfg Config, fsys afero.Fs, cache thumbcache.Cache, log logger.Logger) *Extractor {
	if cfg.TextLength <= 0 {
		cfg.TextLength = DefaultTextLength
	}
	if cfg.LogLines <= 0 {
		cfg.LogLines = DefaultLogLines
	}
	if cfg.ThumbnailSize <= 0 {
		cfg.ThumbnailSize = DefaultThumbnailSize
	}
	if cfg.PublicPrefix == "" {
		cfg.PublicPrefix = DefaultPublicPrefix
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cache == nil {
		cache = thumbcache.Nop()
	}
	if log == nil {
		log = logger.Noop()
	}

	return &Extractor{
		cfg:   cfg,
		fs:    fsys,
		cache: cache,
		log:   log,
	}
}

// Config returns the effective configuration.
func (e *Extractor) Config() Config {
	return e.cfg
}

// Extract reads the file at path as type t.
//
// It returns zero or more results; an unreadable or malformed file yields
// none.
func (e *Extractor) Extract(path string, t filetype.Type) []Result {
	results, err := e.Read(path, t)
	if err != nil {
		e.log.Debug("ignoring file", "path", path, "type", t, "error", err)
		return nil
	}
	return results
}

// Read is Extract with failures reported. A nil error means the file was
// read and parsed completely, even when it yields no results; a file that
// is still being written fails.
func (e *Extractor) Read(path string, t filetype.Type) ([]Result, error) {
	switch t {
	case filetype.JSON:
		return e.extractJSON(path)
	case filetype.Image:
		return e.extractImage(path)
	case filetype.Text:
		return e.extractText(path)
	case filetype.Log:
		return e.extractLog(path)
	case filetype.Markdown:
		return e.extractMarkdown(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, t)
	}
}

// LoadJSON decodes a JSON object. Anything else, including an unreadable
// file, yields an empty map.
func (e *Extractor) LoadJSON(path string) map[string]any {
	obj, err := e.loadJSON(path)
	if err != nil {
		e.log.Debug("ignoring json file", "path", path, "error", err)
		return map[string]any{}
	}
	return obj
}

// RunMetadata returns the command field of a run metadata file. A readable
// object without a command yields nil and no error.
func (e *Extractor) RunMetadata(path string) (any, error) {
	obj, err := e.loadJSON(path)
	if err != nil {
		return nil, err
	}
	return obj["command"], nil
}

// ImageReference returns the path of the image a JSON file names in its
// images field. ok is false when the file cannot be decoded or names no
// image.
func (e *Extractor) ImageReference(jsonPath string) (string, bool) {
	obj, err := e.loadJSON(jsonPath)
	if err != nil {
		return "", false
	}
	field, _ := obj["images"].(map[string]any)
	source, _ := field["source"].(string)
	if source == "" {
		return "", false
	}
	return resolveSource(jsonPath, source), true
}

func (e *Extractor) loadJSON(path string) (map[string]any, error) {
	data, err := e.readFile(path)
	if err != nil {
		return nil, err
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode json: %w", err)
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return obj, nil
}

func (e *Extractor) extractJSON(path string) ([]Result, error) {
	doc, err := e.loadJSON(path)
	if err != nil {
		return nil, err
	}

	var results []Result

	if scalars, ok := doc["scalars"]; ok {
		results = append(results, Result{Kind: coord.KindScalars, Value: scalars})
	}

	if texts, ok := doc["texts"]; ok {
		results = append(results, Result{
			Kind:     coord.KindTexts,
			Value:    texts,
			Truncate: textLength(texts) > e.cfg.TextLength,
		})
	}

	if images, ok := doc["images"]; ok {
		// The referenced image may be missing or incomplete; the rest of
		// the document still counts.
		if value, refErr := e.referencedImage(path, images); refErr != nil {
			e.log.Debug("skipping image reference", "path", path, "error", refErr)
		} else {
			results = append(results, Result{Kind: coord.KindImages, Value: value})
		}
	}

	return results, nil
}

// textLength counts the runes of the actual and expected fields.
func textLength(texts any) int {
	obj, ok := texts.(map[string]any)
	if !ok {
		return 0
	}

	n := 0
	for _, field := range []string{"actual", "expected"} {
		if s, isString := obj[field].(string); isString {
			n += utf8.RuneCountInString(s)
		}
	}
	return n
}

func (e *Extractor) extractText(path string) ([]Result, error) {
	text, err := e.readText(path)
	if err != nil {
		return nil, err
	}

	return []Result{{
		Kind:     coord.KindTexts,
		Value:    map[string]any{"actual": text},
		Truncate: utf8.RuneCountInString(text) > e.cfg.TextLength,
	}}, nil
}

func (e *Extractor) extractMarkdown(path string) ([]Result, error) {
	text, err := e.readText(path)
	if err != nil {
		return nil, err
	}

	return []Result{{
		Kind:     coord.KindMarkdown,
		Value:    map[string]any{"raw": text},
		Truncate: utf8.RuneCountInString(text) > e.cfg.TextLength,
	}}, nil
}

func (e *Extractor) extractLog(path string) ([]Result, error) {
	data, err := e.readFile(path)
	if err != nil {
		return nil, err
	}

	lines, err := ParseLog(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	return []Result{{
		Kind:     coord.KindLogs,
		Value:    map[string]any{"lines": lines},
		Truncate: len(lines) > e.cfg.LogLines,
	}}, nil
}

// ParseLog reads tab-separated log lines. Quotes have no special meaning.
//
// Fields per line:
//
//	message
//	timestamp, message
//	timestamp, tag, message (further fields are ignored)
func ParseLog(r io.Reader) ([]any, error) {
	lines := make([]any, 0)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLogLine)

	for scanner.Scan() {
		line := strings.ToValidUTF8(scanner.Text(), string(utf8.RuneError))
		fields := strings.Split(line, "\t")

		var entry map[string]any
		switch len(fields) {
		case 1:
			entry = map[string]any{"message": fields[0]}
		case 2:
			entry = map[string]any{"message": fields[1], "timestamp": fields[0]}
		default:
			entry = map[string]any{"message": fields[2], "timestamp": fields[0], "tag": fields[1]}
		}
		lines = append(lines, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	return lines, nil
}

func (e *Extractor) readText(path string) (string, error) {
	data, err := e.readFile(path)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(data), string(utf8.RuneError)), nil
}

// readFile reads a regular file within the size limit.
func (e *Extractor) readFile(path string) ([]byte, error) {
	info, err := e.fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, ErrNotRegular
	}
	if info.Size() > e.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, info.Size())
	}

	data, err := afero.ReadFile(e.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}
