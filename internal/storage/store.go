// Package storage is the durable object store shared by every pipeline
// stage. Objects are addressed by a logical alias (chunks, merged, edited,
// podcast, meta, rawtext, ...) that resolves to a bucket, plus a key.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned when the key does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrUnknownAlias is returned for an alias with no configured bucket.
	ErrUnknownAlias = errors.New("unknown storage alias")
)

// Store is the object store contract. Puts are idempotent overwrites.
type Store interface {
	GetText(ctx context.Context, alias, key string) (string, error)
	GetBytes(ctx context.Context, alias, key string) ([]byte, error)
	Put(ctx context.Context, alias, key string, body []byte, contentType string) error
	List(ctx context.Context, alias, prefix string) ([]string, error)
	Delete(ctx context.Context, alias, key string) error
	PublicURL(alias, key string) (string, error)
}

// Aliases maps logical aliases to buckets and public base URLs.
type Aliases struct {
	Buckets    map[string]string
	PublicURLs map[string]string
}

// Bucket resolves alias to its bucket name.
func (a Aliases) Bucket(alias string) (string, error) {
	bucket, ok := a.Buckets[alias]
	if !ok || bucket == "" {
		return "", fmt.Errorf("%w %q (known: %s)", ErrUnknownAlias, alias, strings.Join(a.Names(), ", "))
	}
	return bucket, nil
}

// Names returns the configured aliases, sorted.
func (a Aliases) Names() []string {
	names := make([]string, 0, len(a.Buckets))
	for name := range a.Buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PublicURL joins the alias base URL with the URL-escaped key segments.
func (a Aliases) PublicURL(alias, key string) (string, error) {
	base, ok := a.PublicURLs[alias]
	if !ok || base == "" {
		return "", fmt.Errorf("%w %q: no public url configured", ErrUnknownAlias, alias)
	}
	return JoinURL(base, key), nil
}

// JoinURL appends key to base, escaping each path segment.
func JoinURL(base, key string) string {
	segments := strings.Split(strings.TrimLeft(key, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segments, "/")
}

// SanitizeContentType strips control whitespace that header validation rejects.
func SanitizeContentType(ct string) string {
	ct = strings.Map(func(r rune) rune {
		switch r {
		case '\r', '\n', '\t':
			return ' '
		}
		return r
	}, ct)
	return strings.TrimSpace(ct)
}

// Well-known aliases.
const (
	AliasChunks      = "chunks"
	AliasMerged      = "merged"
	AliasEdited      = "edited"
	AliasPodcast     = "podcast"
	AliasMeta        = "meta"
	AliasRawText     = "rawtext"
	AliasTranscripts = "transcripts"
	AliasArt         = "art"
)
