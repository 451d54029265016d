package mixdown

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackzampolin/studio/internal/episode"
)

func TestVerify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("method = %s, want HEAD", r.Method)
		}
		if r.URL.Path == "/art.png" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	checks := Verify(context.Background(), srv.Client(), &episode.Metadata{
		PodcastURL: srv.URL + "/ep.mp3",
		ArtURL:     srv.URL + "/art.png",
	})
	if len(checks) != 3 {
		t.Fatalf("Verify() returned %d checks", len(checks))
	}

	want := map[string]bool{"podcast": true, "art": false, "transcript": false}
	for _, c := range checks {
		if c.OK() != want[c.Name] {
			t.Errorf("%s OK() = %v (status %d, err %q)", c.Name, c.OK(), c.Status, c.Err)
		}
	}
	if checks[1].Status != http.StatusNotFound || checks[1].Err != "HTTP 404" {
		t.Errorf("art check = %+v", checks[1])
	}
}
