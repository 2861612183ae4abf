// File: control/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Snapshot configuration store backed by a YAML file.

package control

import (
	"fmt"
	"os"
	"sync"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v2"
)

// ConfigStore holds the current configuration tree. Readers get copies; writers
// replace keys atomically and notify reload listeners.
type ConfigStore struct {
	mu        sync.RWMutex
	config    map[string]any
	listeners []func()
	source    string
}

// NewConfigStore returns an empty store.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{
		config: make(map[string]any),
	}
}

// GetSnapshot returns a shallow copy of the current tree.
func (cs *ConfigStore) GetSnapshot() map[string]any {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	copyMap := make(map[string]any, len(cs.config))
	for k, v := range cs.config {
		copyMap[k] = v
	}
	return copyMap
}

// SetConfig merges updates into the tree and dispatches reload listeners.
func (cs *ConfigStore) SetConfig(updates map[string]any) {
	cs.mu.Lock()
	for k, v := range updates {
		cs.config[k] = v
	}
	cs.mu.Unlock()
	cs.dispatchReload()
}

// OnReload registers fn to run after every update.
func (cs *ConfigStore) OnReload(fn func()) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}

// Source is the path of the last file loaded, if any.
func (cs *ConfigStore) Source() string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.source
}

// LoadFile parses a YAML document and merges its top-level keys.
func (cs *ConfigStore) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("control: read %s: %w", path, err)
	}
	tree, err := ParseYAML(raw)
	if err != nil {
		return fmt.Errorf("control: %s: %w", path, err)
	}
	cs.mu.Lock()
	cs.source = path
	cs.mu.Unlock()
	cs.SetConfig(tree)
	return nil
}

// Decode maps the subtree under key onto out. An empty key decodes the whole
// tree. Durations accept strings such as "250ms"; scalars are weakly typed.
func (cs *ConfigStore) Decode(key string, out any) error {
	var input any = cs.GetSnapshot()
	if key != "" {
		v, ok := cs.GetSnapshot()[key]
		if !ok {
			return nil
		}
		input = v
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(input); err != nil {
		return fmt.Errorf("control: decode %q: %w", key, err)
	}
	return nil
}

// ParseYAML parses a YAML mapping into a tree with string keys.
func ParseYAML(raw []byte) (map[string]any, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = stringKeys(v)
	}
	return out, nil
}

// stringKeys rewrites the map[interface{}]interface{} nodes yaml.v2 produces.
func stringKeys(v any) any {
	switch t := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[fmt.Sprint(k)] = stringKeys(e)
		}
		return m
	case map[string]any:
		for k, e := range t {
			t[k] = stringKeys(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = stringKeys(e)
		}
		return t
	default:
		return v
	}
}

func (cs *ConfigStore) dispatchReload() {
	cs.mu.RLock()
	fns := make([]func(), len(cs.listeners))
	copy(fns, cs.listeners)
	cs.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}
