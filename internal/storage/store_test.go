package storage

import (
	"errors"
	"testing"
)

func testAliases() Aliases {
	return Aliases{
		Buckets: map[string]string{
			"chunks":  "podcast-chunks",
			"merged":  "podcast-merged",
			"edited":  "podcast-edited",
			"podcast": "podcast",
			"meta":    "podcast-meta",
			"rawtext": "raw-text",
		},
		PublicURLs: map[string]string{
			"chunks":  "https://chunks.example.com/",
			"podcast": "https://cdn.example.com",
		},
	}
}

func TestAliasesBucket(t *testing.T) {
	a := testAliases()
	bucket, err := a.Bucket("podcast")
	if err != nil {
		t.Fatalf("Bucket() error = %v", err)
	}
	if bucket != "podcast" {
		t.Fatalf("Bucket() = %q", bucket)
	}
	if _, err := a.Bucket("rss"); !errors.Is(err, ErrUnknownAlias) {
		t.Fatalf("Bucket(rss) error = %v, want ErrUnknownAlias", err)
	}
}

func TestAliasesPublicURL(t *testing.T) {
	a := testAliases()

	tests := []struct {
		alias string
		key   string
		want  string
	}{
		{"podcast", "TT-20250101-abcd1234.mp3", "https://cdn.example.com/TT-20250101-abcd1234.mp3"},
		{"chunks", "TT-1/chunk-001.mp3", "https://chunks.example.com/TT-1/chunk-001.mp3"},
		{"podcast", "my episode #1.mp3", "https://cdn.example.com/my%20episode%20%231.mp3"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := a.PublicURL(tt.alias, tt.key)
			if err != nil {
				t.Fatalf("PublicURL() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("PublicURL() = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := a.PublicURL("meta", "x.json"); !errors.Is(err, ErrUnknownAlias) {
		t.Fatalf("PublicURL(meta) error = %v, want ErrUnknownAlias", err)
	}
}

func TestSanitizeContentType(t *testing.T) {
	if got := SanitizeContentType(" audio/mpeg\r\n"); got != "audio/mpeg" {
		t.Fatalf("SanitizeContentType() = %q", got)
	}
	if got := SanitizeContentType("text/plain;\tcharset=utf-8"); got != "text/plain; charset=utf-8" {
		t.Fatalf("SanitizeContentType() = %q", got)
	}
}
