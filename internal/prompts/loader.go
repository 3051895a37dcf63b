// Package prompts holds the engine's text templates: the ranking oracle prompt
// and the outbound SMS copy. Files are JSON maps of key to template and are
// embedded at compile time.
package prompts

import (
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Template files.
const (
	RankingFile  = "ranking.json"
	MessagesFile = "messages.json"
)

// Template keys.
const (
	KeyRankCandidates = "rank-candidates"
	KeyOutreachSMS    = "outreach-sms"
	KeyEscalationSMS  = "escalation-sms"
)

//go:embed *.json
var templateFiles embed.FS

var (
	parsed   = make(map[string]map[string]string)
	parsedMu sync.RWMutex
)

// Get returns the template stored under key in filename.
func Get(filename, key string) (string, error) {
	entries, err := load(filename)
	if err != nil {
		return "", err
	}
	tmpl, ok := entries[key]
	if !ok {
		return "", fmt.Errorf("prompt key %q not found in %s", key, filename)
	}
	return tmpl, nil
}

// MustGet is Get for templates that must exist at startup.
func MustGet(filename, key string) string {
	tmpl, err := Get(filename, key)
	if err != nil {
		panic(fmt.Sprintf("failed to load prompt: %v", err))
	}
	return tmpl
}

// Format substitutes {{.Key}} placeholders. Unknown placeholders are left as-is.
func Format(tmpl string, data map[string]string) string {
	if len(data) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(data)*2)
	for k, v := range data {
		pairs = append(pairs, "{{."+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// Render looks up a template and formats it in one step.
func Render(filename, key string, data map[string]string) (string, error) {
	tmpl, err := Get(filename, key)
	if err != nil {
		return "", err
	}
	return Format(tmpl, data), nil
}

// Keys lists the template keys in filename, sorted.
func Keys(filename string) ([]string, error) {
	entries, err := load(filename)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Reset drops parsed files so the next lookup re-reads them.
func Reset() {
	parsedMu.Lock()
	parsed = make(map[string]map[string]string)
	parsedMu.Unlock()
}

func load(filename string) (map[string]string, error) {
	parsedMu.RLock()
	entries, ok := parsed[filename]
	parsedMu.RUnlock()
	if ok {
		return entries, nil
	}

	raw, err := templateFiles.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file %s: %w", filename, err)
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse prompt file %s: %w", filename, err)
	}

	parsedMu.Lock()
	parsed[filename] = entries
	parsedMu.Unlock()
	return entries, nil
}
