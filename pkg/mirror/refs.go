package mirror

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// references tracks which JSON files name which image in their images
// field, so that a changed image can refresh the JSON leaves built from it.
type references struct {
	mu      sync.Mutex
	byImage map[string]map[string]struct{} // image -> json files
	byJSON  map[string]string              // json file -> image
}

func newReferences() *references {
	return &references{
		byImage: make(map[string]map[string]struct{}),
		byJSON:  make(map[string]string),
	}
}

// set records that jsonPath names imagePath, replacing any earlier image.
func (r *references) set(jsonPath, imagePath string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.dropLocked(jsonPath)

	users, ok := r.byImage[imagePath]
	if !ok {
		users = make(map[string]struct{})
		r.byImage[imagePath] = users
	}
	users[jsonPath] = struct{}{}
	r.byJSON[jsonPath] = imagePath
}

// drop forgets jsonPath.
func (r *references) drop(jsonPath string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.dropLocked(jsonPath)
}

func (r *references) dropLocked(jsonPath string) {
	imagePath, ok := r.byJSON[jsonPath]
	if !ok {
		return
	}
	delete(r.byJSON, jsonPath)

	users := r.byImage[imagePath]
	delete(users, jsonPath)
	if len(users) == 0 {
		delete(r.byImage, imagePath)
	}
}

// dropUnder forgets every JSON file at or below dir.
func (r *references) dropUnder(dir string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for jsonPath := range r.byJSON {
		if within(dir, jsonPath) {
			r.dropLocked(jsonPath)
		}
	}
}

// reset forgets everything.
func (r *references) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byImage = make(map[string]map[string]struct{})
	r.byJSON = make(map[string]string)
}

// users returns the JSON files naming imagePath, sorted.
func (r *references) users(imagePath string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return sortedKeys(r.byImage[imagePath])
}

// usersUnder returns the JSON files naming an image at or below dir, sorted.
func (r *references) usersUnder(dir string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	found := make(map[string]struct{})
	for imagePath, users := range r.byImage {
		if !within(dir, imagePath) {
			continue
		}
		for jsonPath := range users {
			found[jsonPath] = struct{}{}
		}
	}
	return sortedKeys(found)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// within reports whether p is dir or below it.
func within(dir, p string) bool {
	return p == dir || strings.HasPrefix(p, dir+string(filepath.Separator))
}
