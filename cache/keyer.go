package cache

import (
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/zeebo/xxh3"
)

// Key component defaults applied before canonicalization.
const (
	DefaultSource     = "all"
	DefaultDomain     = "all"
	DefaultStrategy   = "hybrid"
	DefaultMaxResults = 10
)

// stopwords are dropped from queries during normalization.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "has": {}, "in": {}, "is": {}, "it": {},
	"of": {}, "on": {}, "or": {}, "that": {}, "the": {}, "to": {}, "was": {},
	"were": {}, "will": {}, "with": {},
}

// KeyComponents identifies a logical search request.
type KeyComponents struct {
	Query      string `json:"query" yaml:"query"`
	Source     string `json:"source" yaml:"source"`
	Domain     string `json:"domain,omitempty" yaml:"domain"`
	Strategy   string `json:"strategy,omitempty" yaml:"strategy"`
	MaxResults int    `json:"max_results,omitempty" yaml:"max_results"`
}

// Keyer derives cache keys from request components.
//
// Contract:
// - Determinism: equivalent components must produce the same key.
// - Concurrency: implementations must be safe for concurrent use.
// - Parse must return an error wrapping ErrMalformedKey for any string Key
// could not have produced.
type Keyer interface {
	// Key returns the canonical key for k.
	Key(k KeyComponents) string

	// Parse recovers normalized components from a key.
	Parse(key string) (KeyComponents, error)
}

// DefaultKeyer produces keys as a fixed-order JSON record.
type DefaultKeyer struct{}

// NewDefaultKeyer creates a new default keyer.
func NewDefaultKeyer() *DefaultKeyer {
	return &DefaultKeyer{}
}

// Key implements Keyer.
func (DefaultKeyer) Key(k KeyComponents) string {
	return CanonicalKey(k)
}

// Parse implements Keyer.
func (DefaultKeyer) Parse(key string) (KeyComponents, error) {
	return ParseKey(key)
}

// record is the serialized form of a canonical key. Field order is the
// key's byte order and must not change.
//
// JSON cannot carry invalid UTF-8, so a query holding such bytes is also
// stored exactly as hex in QueryHex. Query then holds a readable form with
// U+FFFD in place of each invalid sequence.
type record struct {
	Query      string `json:"query"`
	Source     string `json:"source"`
	Domain     string `json:"domain"`
	Strategy   string `json:"strategy"`
	MaxResults int    `json:"maxResults"`
	QueryHex   string `json:"queryHex,omitempty"`
}

// Normalize reduces a query to its sorted, lowercased content words.
// Bytes that are not valid UTF-8 are kept as they are.
func Normalize(query string) string {
	tokens := strings.Fields(lower(query))
	kept := tokens[:0]
	for _, tok := range tokens {
		if utf8.RuneCountInString(tok) <= 1 {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		kept = append(kept, tok)
	}
	slices.Sort(kept)
	return strings.Join(kept, " ")
}

// lower is strings.ToLower without its replacement of invalid bytes.
func lower(s string) string {
	if utf8.ValidString(s) {
		return strings.ToLower(s)
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			b.WriteByte(s[i])
		} else {
			b.WriteRune(unicode.ToLower(r))
		}
		i += size
	}
	return b.String()
}

// Canonicalize returns k with the query normalized and defaults applied.
func Canonicalize(k KeyComponents) KeyComponents {
	maxResults := k.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return KeyComponents{
		Query:      Normalize(k.Query),
		Source:     normalizeField(k.Source, DefaultSource),
		Domain:     normalizeField(k.Domain, DefaultDomain),
		Strategy:   normalizeField(k.Strategy, DefaultStrategy),
		MaxResults: maxResults,
	}
}

// CanonicalKey returns the deterministic key for k.
func CanonicalKey(k KeyComponents) string {
	c := Canonicalize(k)
	r := record{
		Query:      c.Query,
		Source:     c.Source,
		Domain:     c.Domain,
		Strategy:   c.Strategy,
		MaxResults: c.MaxResults,
	}
	if !utf8.ValidString(c.Query) {
		r.Query = strings.ToValidUTF8(c.Query, string(utf8.RuneError))
		r.QueryHex = hex.EncodeToString([]byte(c.Query))
	}
	// A record of strings and an int always encodes.
	b, _ := json.Marshal(r)
	return string(b)
}

// ParseKey is the inverse of CanonicalKey.
func ParseKey(key string) (KeyComponents, error) {
	dec := json.NewDecoder(strings.NewReader(key))
	dec.DisallowUnknownFields()

	var r record
	if err := dec.Decode(&r); err != nil {
		return KeyComponents{}, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	if dec.More() {
		return KeyComponents{}, fmt.Errorf("%w: trailing data", ErrMalformedKey)
	}

	query := r.Query
	if r.QueryHex != "" {
		raw, err := hex.DecodeString(r.QueryHex)
		if err != nil {
			return KeyComponents{}, fmt.Errorf("%w: query bytes: %v", ErrMalformedKey, err)
		}
		query = string(raw)
	}

	k := KeyComponents{
		Query:      query,
		Source:     r.Source,
		Domain:     r.Domain,
		Strategy:   r.Strategy,
		MaxResults: r.MaxResults,
	}
	if CanonicalKey(k) != key {
		return KeyComponents{}, fmt.Errorf("%w: not in canonical form", ErrMalformedKey)
	}
	return k, nil
}

// Fingerprint returns a short digest of key for logs and span attributes.
// Keys embed query text, which must not be logged.
func Fingerprint(key string) string {
	return fmt.Sprintf("%016x", xxh3.HashString(key))
}

// NormalizeSource lowercases and trims source, applying the default.
func NormalizeSource(source string) string {
	return normalizeField(source, DefaultSource)
}

func normalizeField(v, def string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return def
	}
	return v
}

// Ensure DefaultKeyer implements Keyer
var _ Keyer = DefaultKeyer{}
