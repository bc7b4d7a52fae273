package cache

import (
	"testing"
	"time"

	"github.com/use-agent/listingd/models"
)

func TestKey(t *testing.T) {
	a := Key("https://e.fr/1", "browser", "v1")
	if a != Key("https://e.fr/1", "browser", "v1") {
		t.Error("key not deterministic")
	}
	if a == Key("https://e.fr/1", "http", "v1") {
		t.Error("fetch mode ignored")
	}
	if a == Key("https://e.fr/1", "browser", "v2") {
		t.Error("table version ignored")
	}
}

func TestCache_GetSet(t *testing.T) {
	c := New(10, time.Hour)
	res := &models.ExtractResult{SubmittedURL: "https://e.fr/1"}
	c.Set("k", res)

	if _, ok := c.Get("k", 0); ok {
		t.Error("max age 0 must skip the cache")
	}
	got, ok := c.Get("k", 60_000)
	if !ok || got != res {
		t.Fatalf("Get = %v, %v", got, ok)
	}
	if _, ok := c.Get("missing", 60_000); ok {
		t.Error("hit for a missing key")
	}
}

func TestCache_MaxAge(t *testing.T) {
	c := New(10, time.Hour)
	c.Set("k", &models.ExtractResult{})
	time.Sleep(30 * time.Millisecond)

	if _, ok := c.Get("k", 10); ok {
		t.Error("hit for an entry older than max age")
	}
	if _, ok := c.Get("k", 60_000); !ok {
		t.Error("miss for an entry within max age")
	}
}

func TestCache_TTL(t *testing.T) {
	c := New(10, 20*time.Millisecond)
	c.Set("k", &models.ExtractResult{})
	time.Sleep(60 * time.Millisecond)

	if _, ok := c.Get("k", 3_600_000); ok {
		t.Error("entry older than the TTL was served")
	}
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := New(2, time.Hour)
	c.Set("a", &models.ExtractResult{})
	c.Set("b", &models.ExtractResult{})
	c.Set("b", &models.ExtractResult{})
	if c.Len() != 2 {
		t.Fatalf("Len = %d after overwrite, want 2", c.Len())
	}

	if _, ok := c.Get("a", 60_000); !ok {
		t.Fatal("miss for a")
	}
	c.Set("c", &models.ExtractResult{})

	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
	if _, ok := c.Get("b", 60_000); ok {
		t.Error("b should be evicted as least recently used")
	}
	for _, k := range []string{"a", "c"} {
		if _, ok := c.Get(k, 60_000); !ok {
			t.Errorf("%s evicted", k)
		}
	}
}
