// Package evidence collapses duplicate citations and caps how many survive per
// source domain.
package evidence

import (
	"net/url"
	"sort"
	"strings"
	"unicode"

	"travel-intel/internal/entity"
	"travel-intel/pkg/hasher"
)

// Deduplicator keys evidence by (domain, fingerprint).
type Deduplicator struct {
	// MaxPerDomain caps survivors per domain; zero or less means unlimited.
	MaxPerDomain int
}

func NewDeduplicator(maxPerDomain int) *Deduplicator {
	return &Deduplicator{MaxPerDomain: maxPerDomain}
}

// Dedupe returns the surviving evidence ordered by authority desc, then
// CollectedAt asc, then URL. The input slice is not modified.
func (d *Deduplicator) Dedupe(items []entity.EvidenceItem) []entity.EvidenceItem {
	if len(items) == 0 {
		return nil
	}

	best := make(map[string]entity.EvidenceItem, len(items))
	for _, item := range items {
		item.SourceDomain = ItemDomain(item)
		key := Key(item)
		if cur, ok := best[key]; !ok || ranksBefore(item, cur) {
			best[key] = item
		}
	}

	out := make([]entity.EvidenceItem, 0, len(best))
	for _, item := range best {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return ranksBefore(out[i], out[j]) })

	if d.MaxPerDomain <= 0 {
		return out
	}
	perDomain := make(map[string]int)
	capped := out[:0]
	for _, item := range out {
		if perDomain[item.SourceDomain] >= d.MaxPerDomain {
			continue
		}
		perDomain[item.SourceDomain]++
		capped = append(capped, item)
	}
	return capped
}

// Key identifies an evidence item as "<domain>|<fingerprint>".
func Key(item entity.EvidenceItem) string {
	return ItemDomain(item) + "|" + Fingerprint(item)
}

// Keys returns the sorted keys of items.
func Keys(items []entity.EvidenceItem) []string {
	keys := make([]string, 0, len(items))
	for _, item := range items {
		keys = append(keys, Key(item))
	}
	sort.Strings(keys)
	return keys
}

// Fingerprint hashes the normalized excerpt. An item whose excerpt normalizes
// to nothing is fingerprinted by its URL, so empty excerpts from one domain do
// not collapse into a single citation.
func Fingerprint(item entity.EvidenceItem) string {
	text := NormalizeExcerpt(item.Excerpt)
	if text == "" {
		return hasher.Sum("url", strings.TrimSpace(item.SourceURL))
	}
	return hasher.Sum("excerpt", text)
}

// NormalizeExcerpt lower-cases, NFC-normalizes, strips punctuation and
// collapses whitespace.
func NormalizeExcerpt(s string) string {
	s = hasher.NormalizeString(strings.ToLower(s))
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case unicode.IsPunct(r):
			continue
		case unicode.IsSpace(r):
			space = b.Len() > 0
		default:
			if space {
				b.WriteByte(' ')
				space = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ItemDomain is the item's normalized domain, derived from its URL when unset.
func ItemDomain(item entity.EvidenceItem) string {
	if d := NormalizeDomain(item.SourceDomain); d != "" {
		return d
	}
	return DomainFromURL(item.SourceURL)
}

func NormalizeDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimSuffix(d, ".")
	return strings.TrimPrefix(d, "www.")
}

func DomainFromURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return NormalizeDomain(u.Hostname())
}

// ranksBefore orders by authority desc, CollectedAt asc, URL asc. Domain and
// excerpt break the remaining ties so the order is total.
func ranksBefore(a, b entity.EvidenceItem) bool {
	if a.AuthorityScore != b.AuthorityScore {
		return a.AuthorityScore > b.AuthorityScore
	}
	if !a.CollectedAt.Equal(b.CollectedAt) {
		return a.CollectedAt.Before(b.CollectedAt)
	}
	if a.SourceURL != b.SourceURL {
		return a.SourceURL < b.SourceURL
	}
	if a.SourceDomain != b.SourceDomain {
		return a.SourceDomain < b.SourceDomain
	}
	return a.Excerpt < b.Excerpt
}
