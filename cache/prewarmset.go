package cache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidPrewarmSet indicates a prewarm set document could not be used.
var ErrInvalidPrewarmSet = errors.New("cache: invalid prewarm set")

// prewarmSet is the YAML document layout:
//
//	queries:
//	  - query: metformin renal dosing
//	    source: pubmed
//	    max_results: 20
type prewarmSet struct {
	Queries []KeyComponents `yaml:"queries"`
}

// ParsePrewarmSet decodes a YAML prewarm set. Every entry needs a query.
func ParsePrewarmSet(data []byte) ([]KeyComponents, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var set prewarmSet
	if err := dec.Decode(&set); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrewarmSet, err)
	}

	for i, q := range set.Queries {
		if strings.TrimSpace(q.Query) == "" {
			return nil, fmt.Errorf("%w: entry %d has an empty query", ErrInvalidPrewarmSet, i)
		}
		if q.MaxResults < 0 {
			return nil, fmt.Errorf("%w: entry %d has negative max_results", ErrInvalidPrewarmSet, i)
		}
	}
	return set.Queries, nil
}

// LoadPrewarmSet reads and decodes a YAML prewarm set file.
func LoadPrewarmSet(path string) ([]KeyComponents, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cache: read prewarm set: %w", err)
	}
	return ParsePrewarmSet(data)
}
