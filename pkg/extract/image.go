package extract

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"image/jpeg"
	_ "image/png" // register decoder
	"path"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"  // register decoder
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // register decoder

	"github.com/0xmhha/runmirror/pkg/coord"
	"github.com/0xmhha/runmirror/pkg/filetype"
	"github.com/0xmhha/runmirror/pkg/thumbcache"
)

// thumbnailQuality is the JPEG quality of thumbnails.
const thumbnailQuality = 75

func (e *Extractor) extractImage(path string) ([]Result, error) {
	value, err := e.prepareImage(path)
	if err != nil {
		return nil, err
	}
	return []Result{{Kind: coord.KindImages, Value: value, Policy: PolicyKeepSameSource}}, nil
}

// referencedImage resolves the images field of a JSON file. The source is
// relative to the JSON file's directory.
func (e *Extractor) referencedImage(jsonPath string, field any) (map[string]any, error) {
	obj, ok := field.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	source, _ := obj["source"].(string)
	if source == "" {
		return nil, ErrNoSource
	}

	prepared, err := e.prepareImage(resolveSource(jsonPath, source))
	if err != nil {
		return nil, err
	}

	merged := make(map[string]any, len(obj)+len(prepared))
	for k, v := range obj {
		merged[k] = v
	}
	for k, v := range prepared {
		merged[k] = v
	}
	return merged, nil
}

// resolveSource maps an image source named in a JSON file to a path. A
// relative source is relative to the JSON file's directory.
func resolveSource(jsonPath, source string) string {
	if filepath.IsAbs(source) {
		return filepath.Clean(source)
	}
	return filepath.Join(filepath.Dir(jsonPath), filepath.FromSlash(source))
}

// PrepareImage decodes an image and builds its payload:
//
//	{source, thumbnail: {base64, width, height}, frames?}
//
// width and height are those of the original. It returns nil when the file
// cannot be decoded, which includes images that are still being written.
func (e *Extractor) PrepareImage(path string) map[string]any {
	value, err := e.prepareImage(path)
	if err != nil {
		e.log.Debug("ignoring image", "path", path, "error", err)
		return nil
	}
	return value
}

func (e *Extractor) prepareImage(imagePath string) (map[string]any, error) {
	info, err := e.fs.Stat(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat image: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, ErrNotRegular
	}

	key := thumbcache.Key{Path: imagePath, Size: info.Size(), ModTime: info.ModTime()}
	entry, ok := e.cache.Get(key)
	if !ok {
		data, readErr := e.readFile(imagePath)
		if readErr != nil {
			return nil, readErr
		}

		entry, err = e.thumbnail(imagePath, data)
		if err != nil {
			return nil, err
		}

		if putErr := e.cache.Put(key, entry); putErr != nil {
			e.log.Warn("failed to cache thumbnail", "path", imagePath, "error", putErr)
		}
	}

	value := map[string]any{
		"source": e.publicSource(imagePath),
		"thumbnail": map[string]any{
			"base64": entry.DataURI,
			"width":  entry.Width,
			"height": entry.Height,
		},
	}
	if entry.Frames > 1 {
		value["frames"] = entry.Frames
	}
	return value, nil
}

// thumbnail decodes data and renders the JPEG thumbnail.
func (e *Extractor) thumbnail(imagePath string, data []byte) (thumbcache.Entry, error) {
	var (
		img    image.Image
		width  int
		height int
		frames int
	)

	if filetype.IsMultiFrame(imagePath) && bytes.HasPrefix(data, []byte("GIF8")) {
		g, err := gif.DecodeAll(bytes.NewReader(data))
		if err != nil {
			return thumbcache.Entry{}, fmt.Errorf("failed to decode gif: %w", err)
		}
		if len(g.Image) == 0 {
			return thumbcache.Entry{}, ErrEmptyImage
		}
		img = g.Image[0]
		width, height = g.Config.Width, g.Config.Height
		if width == 0 || height == 0 {
			b := img.Bounds()
			width, height = b.Dx(), b.Dy()
		}
		frames = len(g.Image)
	} else {
		decoded, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return thumbcache.Entry{}, fmt.Errorf("failed to decode image: %w", err)
		}
		img = decoded
		b := img.Bounds()
		width, height = b.Dx(), b.Dy()
		frames = 1
	}

	if width <= 0 || height <= 0 {
		return thumbcache.Entry{}, ErrEmptyImage
	}

	tw, th := thumbnailSize(width, height, e.cfg.ThumbnailSize)

	// Flatten onto white first so transparent regions don't turn black.
	rgb := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.Draw(rgb, rgb.Bounds(), image.White, image.Point{}, draw.Src)
	xdraw.ApproxBiLinear.Scale(rgb, rgb.Bounds(), img, img.Bounds(), xdraw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgb, &jpeg.Options{Quality: thumbnailQuality}); err != nil {
		return thumbcache.Entry{}, fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	return thumbcache.Entry{
		Width:   width,
		Height:  height,
		Frames:  frames,
		DataURI: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

// thumbnailSize fits (w, h) into a limit x limit box keeping the aspect
// ratio. Images are never enlarged.
func thumbnailSize(w, h, limit int) (int, int) {
	if w <= limit && h <= limit {
		return w, h
	}
	if w >= h {
		return limit, scaled(h, limit, w)
	}
	return scaled(w, limit, h), limit
}

// scaled returns round(v * num / den), at least 1.
func scaled(v, num, den int) int {
	n := (2*v*num + den) / (2 * den)
	if n < 1 {
		return 1
	}
	return n
}

// publicSource maps a file path to its URL below the public prefix.
func (e *Extractor) publicSource(imagePath string) string {
	rel := imagePath
	if e.cfg.Root != "" {
		if r, err := filepath.Rel(e.cfg.Root, imagePath); err == nil && !strings.HasPrefix(r, "..") {
			rel = r
		}
	}
	return path.Join(e.cfg.PublicPrefix, filepath.ToSlash(rel))
}
