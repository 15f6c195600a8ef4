// Package bucket describes the named storage targets the client uploads
// to and the key layout the remediation pipeline expects.
package bucket

import (
	"fmt"
	"sort"
)

// Config describes one storage target. Instances are immutable; the
// registry hands out copies by value.
type Config struct {
	// Key is the format identifier the target is registered under
	// ("pdf", "html").
	Key string

	BucketName string
	Region     string

	// UploadFolder and OutputFolder are key prefixes ending in "/".
	UploadFolder string
	OutputFolder string

	// OutputPrefix is prepended to the result object's base filename.
	OutputPrefix string

	// OutputExtension replaces the original extension when
	// ReplaceExtension is set; otherwise the original extension is kept.
	OutputExtension  string
	ReplaceExtension bool
}

// Registry holds the supported storage targets keyed by format.
type Registry struct {
	configs map[string]Config
}

// NewRegistry builds a registry from the given configs. Duplicate keys
// are a configuration error.
func NewRegistry(configs []Config) (*Registry, error) {
	r := &Registry{configs: make(map[string]Config, len(configs))}
	for _, c := range configs {
		if c.Key == "" {
			return nil, fmt.Errorf("bucket config with empty key")
		}
		if _, ok := r.configs[c.Key]; ok {
			return nil, fmt.Errorf("duplicate bucket config %q", c.Key)
		}
		if c.BucketName == "" {
			return nil, fmt.Errorf("bucket config %q: missing bucket name", c.Key)
		}
		r.configs[c.Key] = c
	}
	return r, nil
}

// Get returns the config for the given format key.
func (r *Registry) Get(key string) (Config, error) {
	c, ok := r.configs[key]
	if !ok {
		return Config{}, fmt.Errorf("unknown format %q", key)
	}
	return c, nil
}

// Keys returns the registered format keys, sorted.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.configs))
	for k := range r.configs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Defaults returns the built-in targets: "pdf" produces a compliant PDF
// next to the original extension, "html" produces a reflowed archive
// with the extension swapped for .zip.
func Defaults(region string) []Config {
	return []Config{
		{
			Key:             "pdf",
			Region:          region,
			UploadFolder:    "pdf/",
			OutputFolder:    "result/",
			OutputPrefix:    "COMPLIANT_",
			OutputExtension: ".pdf",
		},
		{
			Key:              "html",
			Region:           region,
			UploadFolder:     "uploads/",
			OutputFolder:     "remediated/",
			OutputPrefix:     "final_",
			OutputExtension:  ".zip",
			ReplaceExtension: true,
		},
	}
}
