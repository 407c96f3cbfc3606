package evidence

import (
	"testing"
	"time"

	"travel-intel/internal/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func item(url, domain string, authority float64, excerpt string, at time.Time) entity.EvidenceItem {
	return entity.EvidenceItem{
		SourceURL:      url,
		SourceDomain:   domain,
		AuthorityScore: authority,
		Excerpt:        excerpt,
		CollectedAt:    at,
	}
}

func TestNormalizeExcerpt(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Sunset cruises depart at 6pm.", "sunset cruises depart at 6pm"},
		{"  Sunset   CRUISES,\n depart at 6pm!!  ", "sunset cruises depart at 6pm"},
		{"...", ""},
		{"Caf\u00e9", "caf\u00e9"},
		{"CAFE\u0301", "caf\u00e9"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeExcerpt(tt.in))
		})
	}
}

func TestDomainNormalization(t *testing.T) {
	assert.Equal(t, "lonelyplanet.com", NormalizeDomain(" WWW.LonelyPlanet.com "))
	assert.Equal(t, "example.org", DomainFromURL("https://www.example.org:8443/a?b=c"))
	assert.Equal(t, "example.org", DomainFromURL("example.org/path"))
	assert.Equal(t, "", DomainFromURL(""))
	assert.Equal(t, "example.org", ItemDomain(item("https://www.example.org/x", "", 0.5, "", t0)))
	assert.Equal(t, "given.com", ItemDomain(item("https://www.example.org/x", "Given.com", 0.5, "", t0)))
}

func TestDedupeCollisionKeepsHigherAuthority(t *testing.T) {
	d := NewDeduplicator(0)
	out := d.Dedupe([]entity.EvidenceItem{
		item("https://a.com/1", "a.com", 0.4, "Great sunsets here.", t0),
		item("https://a.com/2", "www.a.com", 0.9, "great SUNSETS here", t0.Add(time.Hour)),
	})
	require.Len(t, out, 1)
	assert.Equal(t, "https://a.com/2", out[0].SourceURL)
	assert.Equal(t, "a.com", out[0].SourceDomain)
}

func TestDedupeCollisionTieBreaks(t *testing.T) {
	d := NewDeduplicator(0)

	t.Run("earliest collected wins", func(t *testing.T) {
		out := d.Dedupe([]entity.EvidenceItem{
			item("https://a.com/late", "a.com", 0.7, "same words", t0.Add(time.Hour)),
			item("https://a.com/early", "a.com", 0.7, "same words", t0),
		})
		require.Len(t, out, 1)
		assert.Equal(t, "https://a.com/early", out[0].SourceURL)
	})

	t.Run("smaller url wins", func(t *testing.T) {
		out := d.Dedupe([]entity.EvidenceItem{
			item("https://a.com/b", "a.com", 0.7, "same words", t0),
			item("https://a.com/a", "a.com", 0.7, "same words", t0),
		})
		require.Len(t, out, 1)
		assert.Equal(t, "https://a.com/a", out[0].SourceURL)
	})
}

func TestDedupeSameExcerptDifferentDomainsKept(t *testing.T) {
	out := NewDeduplicator(0).Dedupe([]entity.EvidenceItem{
		item("https://a.com/1", "", 0.5, "same words", t0),
		item("https://b.com/1", "", 0.5, "same words", t0),
	})
	assert.Len(t, out, 2)
}

func TestDedupeEmptyExcerptsFallBackToURL(t *testing.T) {
	out := NewDeduplicator(0).Dedupe([]entity.EvidenceItem{
		item("https://a.com/1", "a.com", 0.5, "", t0),
		item("https://a.com/2", "a.com", 0.5, "  ", t0),
		item("https://a.com/2", "a.com", 0.3, "", t0),
	})
	assert.Len(t, out, 2)
}

func TestDedupeOrdering(t *testing.T) {
	out := NewDeduplicator(0).Dedupe([]entity.EvidenceItem{
		item("https://c.com/z", "c.com", 0.5, "three", t0),
		item("https://a.com/1", "a.com", 0.9, "one", t0.Add(time.Hour)),
		item("https://b.com/1", "b.com", 0.5, "two", t0.Add(-time.Hour)),
		item("https://c.com/a", "c.com", 0.5, "four", t0),
	})
	urls := make([]string, len(out))
	for i, e := range out {
		urls[i] = e.SourceURL
	}
	assert.Equal(t, []string{"https://a.com/1", "https://b.com/1", "https://c.com/a", "https://c.com/z"}, urls)
}

func TestDedupeMaxPerDomain(t *testing.T) {
	d := NewDeduplicator(2)
	out := d.Dedupe([]entity.EvidenceItem{
		item("https://a.com/1", "a.com", 0.2, "first", t0),
		item("https://a.com/2", "a.com", 0.9, "second", t0),
		item("https://a.com/3", "a.com", 0.5, "third", t0),
		item("https://b.com/1", "b.com", 0.1, "other", t0),
	})
	require.Len(t, out, 3)
	assert.Equal(t, "https://a.com/2", out[0].SourceURL)
	assert.Equal(t, "https://a.com/3", out[1].SourceURL)
	assert.Equal(t, "https://b.com/1", out[2].SourceURL)
}

func TestDedupeIsOrderIndependent(t *testing.T) {
	items := []entity.EvidenceItem{
		item("https://a.com/1", "a.com", 0.6, "alpha", t0),
		item("https://a.com/2", "a.com", 0.6, "Alpha!", t0),
		item("https://b.com/1", "b.com", 0.8, "beta", t0),
		item("https://c.com/1", "c.com", 0.6, "gamma", t0.Add(time.Minute)),
	}
	reversed := make([]entity.EvidenceItem, len(items))
	for i := range items {
		reversed[len(items)-1-i] = items[i]
	}
	d := NewDeduplicator(1)
	assert.Equal(t, d.Dedupe(items), d.Dedupe(reversed))
}

func TestDedupeDoesNotMutateInput(t *testing.T) {
	in := []entity.EvidenceItem{item("https://www.a.com/1", "WWW.A.COM", 0.6, "x", t0)}
	NewDeduplicator(0).Dedupe(in)
	assert.Equal(t, "WWW.A.COM", in[0].SourceDomain)
}

func TestKeysAreSortedAndStable(t *testing.T) {
	items := []entity.EvidenceItem{
		item("https://b.com/1", "b.com", 0.5, "x", t0),
		item("https://a.com/1", "a.com", 0.5, "x", t0),
	}
	keys := Keys(items)
	require.Len(t, keys, 2)
	assert.True(t, keys[0] < keys[1])
	assert.Contains(t, keys[0], "a.com|")
}

func TestDedupeEmpty(t *testing.T) {
	assert.Empty(t, NewDeduplicator(3).Dedupe(nil))
}
