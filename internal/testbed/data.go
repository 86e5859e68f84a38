// Package testbed supplies values for the {dot.path} placeholders that
// appear in step text. Values come from an optional JSON data file, with
// STEPPILOT_* environment variables layered on top.
package testbed

import (
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/gjson"
)

// EnvPrefix marks environment variables that override file data. The
// variable STEPPILOT_ADMIN_PASSWORD serves lookups for "admin.password".
const EnvPrefix = "STEPPILOT_"

// Store resolves dot-path keys against a JSON document and an environment
// snapshot taken at construction time. It is immutable after Load and safe
// for concurrent use.
type Store struct {
	doc string
	env map[string]string
}

// Load reads the JSON data file at path. An empty path yields a store that
// resolves from the environment only.
func Load(path string) (*Store, error) {
	s := &Store{env: snapshotEnv()}
	if path == "" {
		return s, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read data file: %w", err)
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("data file %s is not valid JSON", path)
	}
	s.doc = string(raw)
	return s, nil
}

// Resolve looks up a dot-path key. Environment overrides take precedence
// over the data file.
func (s *Store) Resolve(key string) (string, bool) {
	if v, ok := s.env[envKey(key)]; ok {
		return v, true
	}
	if s.doc == "" {
		return "", false
	}
	res := gjson.Get(s.doc, key)
	if !res.Exists() {
		return "", false
	}
	return res.String(), true
}

// envKey maps "admin.password" to "STEPPILOT_ADMIN_PASSWORD".
func envKey(key string) string {
	k := strings.NewReplacer(".", "_", "-", "_").Replace(key)
	return EnvPrefix + strings.ToUpper(k)
}

func snapshotEnv() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if ok && strings.HasPrefix(name, EnvPrefix) {
			env[name] = value
		}
	}
	return env
}
