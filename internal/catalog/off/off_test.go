package off_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/nutrivision/internal/catalog"
	"github.com/MrWong99/nutrivision/internal/catalog/off"
)

var deLocale = catalog.Locale{Country: "de", Language: "de"}

func newServer(t *testing.T, h http.HandlerFunc) *off.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return off.New(off.WithFoodBaseURL(srv.URL), off.WithBeautyBaseURL(srv.URL+"/beauty"))
}

func TestLookup_Found(t *testing.T) {
	t.Parallel()

	urls := make(chan *url.URL, 1)
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		urls <- r.URL
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":1,"product":{"code":"4000417025005","product_name":"Ritter Sport Nuss","brands":"Ritter Sport",
			"nutriments":{"sugars_100g":45.5,"salt_100g":"0.12"},"additives_tags":["en:e322"],"ingredients_text":"Zucker, Haselnuesse"}}`))
	})

	res, err := c.Lookup(context.Background(), "4000417025005", catalog.DomainFood, deLocale)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	u := <-urls
	if u.Path != "/api/v2/product/4000417025005.json" {
		t.Errorf("path = %q", u.Path)
	}
	if got := u.Query().Get("cc"); got != "de" {
		t.Errorf("cc = %q, want de", got)
	}
	if got := u.Query().Get("fields"); !strings.Contains(got, "nutriments") {
		t.Errorf("food fields missing nutriments: %q", got)
	}
	if !res.Found || res.Name != "Ritter Sport Nuss" || res.Confidence != catalog.LookupConfidence {
		t.Errorf("unexpected result: %+v", res)
	}
	if v, ok := res.Product.Nutrient("sugars_100g"); !ok || v != 45.5 {
		t.Errorf("sugars_100g = (%v, %v), want 45.5", v, ok)
	}
	if v, ok := res.Product.Nutrient("salt_100g"); !ok || v != 0.12 {
		t.Errorf("salt_100g = (%v, %v), want 0.12 from string", v, ok)
	}
}

func TestLookup_NotFound(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		h    http.HandlerFunc
	}{
		{"status zero", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"status":0,"status_verbose":"product not found"}`))
		}},
		{"http 404", func(w http.ResponseWriter, _ *http.Request) {
			http.NotFound(w, nil)
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := newServer(t, tc.h)
			res, err := c.Lookup(context.Background(), "12345678", catalog.DomainFood, deLocale)
			if err != nil {
				t.Fatalf("Lookup: %v", err)
			}
			if res.Found {
				t.Errorf("Found = true, want false")
			}
		})
	}
}

func TestLookup_ServerError(t *testing.T) {
	t.Parallel()

	c := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	if _, err := c.Lookup(context.Background(), "12345678", catalog.DomainFood, deLocale); err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestLookup_BeautyUsesBeautyBase(t *testing.T) {
	t.Parallel()

	urls := make(chan *url.URL, 1)
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		urls <- r.URL
		_, _ = w.Write([]byte(`{"status":0}`))
	})
	_, _ = c.Lookup(context.Background(), "3600523614998", catalog.DomainBeauty, deLocale)
	if u := <-urls; !strings.HasPrefix(u.Path, "/beauty/api/v2/product/") {
		t.Errorf("path = %q, want beauty base", u.Path)
	}
}

func TestSearch_RanksWithDecayingConfidence(t *testing.T) {
	t.Parallel()

	urls := make(chan *url.URL, 1)
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		urls <- r.URL
		_, _ = w.Write([]byte(`{"products":[
			{"code":"111","product_name":"Bio Muesli"},
			{"code":"","product_name_de":"Haferflocken"},
			{"code":"333"}
		]}`))
	})

	got, err := c.Search(context.Background(), "bio muesli", catalog.DomainFood, deLocale, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	u := <-urls
	if q := u.Query(); u.Path != "/cgi/search.pl" || q.Get("search_terms") != "bio muesli" || q.Get("page_size") != "5" || q.Get("json") != "1" {
		t.Errorf("unexpected request: %s", u)
	}
	want := []catalog.Candidate{
		{ID: "111", Name: "Bio Muesli", Confidence: 0.82},
		{ID: "candidate-1", Name: "Haferflocken", Confidence: 0.73},
		{ID: "333", Name: "Unknown product", Confidence: 0.64},
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i].ID || got[i].Name != want[i].Name {
			t.Errorf("[%d] = %+v, want %+v", i, got[i], want[i])
		}
		if d := got[i].Confidence - want[i].Confidence; d > 1e-9 || d < -1e-9 {
			t.Errorf("[%d] confidence = %f, want %f", i, got[i].Confidence, want[i].Confidence)
		}
	}
}

func TestSearch_EmptyQuerySkipsRequest(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newServer(t, func(http.ResponseWriter, *http.Request) { calls.Add(1) })
	got, err := c.Search(context.Background(), "  ", catalog.DomainFood, deLocale, 5)
	if err != nil || got != nil {
		t.Errorf("Search = (%v, %v), want (nil, nil)", got, err)
	}
	if calls.Load() != 0 {
		t.Error("server was called for an empty query")
	}
}
