// Package modelmap resolves client-supplied model names to upstream model
// ids. Resolution precedence: user mapping entry > built-in alias table >
// identity.
package modelmap

import (
	"encoding/json"
	"os"
	"sort"
	"sync"

	"github.com/Laisky/errors/v2"
)

// Built-in upstream model ids. These are always advertised by the model
// listing endpoint.
var builtinModels = []string{
	"gemini-3-pro-preview",
	"gemini-3-pro-image",
	"gemini-2.5-flash",
	"gemini-2.5-flash-lite",
}

// Built-in aliases for common client model names. Unknown names pass through
// unchanged so a client can address an upstream model directly.
var builtinAliases = map[string]string{
	"gpt-4o":            "gemini-3-pro-preview",
	"gpt-4o-mini":       "gemini-2.5-flash",
	"gpt-4-turbo":       "gemini-3-pro-preview",
	"gpt-3.5-turbo":     "gemini-2.5-flash-lite",
	"claude-sonnet-4-5": "gemini-3-pro-preview",
	"claude-haiku-4-5":  "gemini-2.5-flash",
	"gemini-3-pro":      "gemini-3-pro-preview",
	"dall-e-3":          "gemini-3-pro-image",
	"gpt-image-1":       "gemini-3-pro-image",
}

// Router holds the user mapping table. The table is replaced wholesale on
// reload, readers take the read lock only.
type Router struct {
	mu      sync.RWMutex
	userMap map[string]string
}

func NewRouter() *Router {
	return &Router{userMap: map[string]string{}}
}

// LoadFile replaces the user mapping from a JSON object file of
// {"client-model": "upstream-model"} pairs. A missing file leaves the
// current table untouched.
func (r *Router) LoadFile(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "read model mapping file %q", path)
	}

	m := map[string]string{}
	if err := json.Unmarshal(data, &m); err != nil {
		return errors.Wrapf(err, "parse model mapping file %q", path)
	}

	r.mu.Lock()
	r.userMap = m
	r.mu.Unlock()
	return nil
}

// SetMapping replaces the user mapping table directly.
func (r *Router) SetMapping(m map[string]string) {
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	r.mu.Lock()
	r.userMap = cp
	r.mu.Unlock()
}

// Resolve maps a client model name to the upstream model id. It never
// returns an empty string: an empty input resolves to the default model.
func (r *Router) Resolve(clientModel string) string {
	if clientModel == "" {
		return builtinModels[0]
	}

	r.mu.RLock()
	mapped, ok := r.userMap[clientModel]
	r.mu.RUnlock()
	if ok && mapped != "" {
		return mapped
	}

	if alias, ok := builtinAliases[clientModel]; ok {
		return alias
	}
	return clientModel
}

// AllModels returns the advertised model ids: built-in upstream models plus
// every client-facing name from the user mapping, deduplicated and sorted.
func (r *Router) AllModels() []string {
	seen := make(map[string]struct{}, len(builtinModels))
	out := make([]string, 0, len(builtinModels))
	for _, id := range builtinModels {
		seen[id] = struct{}{}
		out = append(out, id)
	}

	r.mu.RLock()
	for name := range r.userMap {
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	r.mu.RUnlock()

	sort.Strings(out)
	return out
}
