package models

import (
	"fmt"
	"net/url"
	"strings"
)

// Relevance scoring constants. The first result gets 0.9 and each
// subsequent rank loses 0.05, clamped to [0.1, 0.95].
const (
	relevanceBase    = 0.9
	relevanceStep    = 0.05
	relevanceFloor   = 0.1
	relevanceCeiling = 0.95
)

// faviconService is the external favicon endpoint used for source icons.
const faviconService = "https://www.google.com/s2/favicons?domain=%s&sz=64"

// Source is a deduplicated, URL-keyed record of one web page consulted
// during a session.
type Source struct {
	URL       string  `json:"url"`
	Title     string  `json:"title"`
	Domain    string  `json:"domain"`
	Favicon   string  `json:"favicon,omitempty"`
	Relevance float64 `json:"relevance"`
}

// SourceFromDoc derives a Source record from a search document.
// Returns false if the document URL is empty or unparsable.
func SourceFromDoc(doc SearchDoc) (Source, bool) {
	domain, err := DomainOf(doc.URL)
	if err != nil {
		return Source{}, false
	}
	return Source{
		URL:       doc.URL,
		Title:     doc.Title,
		Domain:    domain,
		Favicon:   FaviconURL(domain),
		Relevance: RelevanceForRank(doc.Rank),
	}, true
}

// DomainOf extracts the lowercased host from a URL, stripping a single
// leading "www." label.
func DomainOf(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("invalid source URL %q: %w", rawURL, err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("source URL %q has no host", rawURL)
	}
	return strings.TrimPrefix(host, "www."), nil
}

// FaviconURL returns the favicon-service URL for a domain.
func FaviconURL(domain string) string {
	return fmt.Sprintf(faviconService, domain)
}

// RelevanceForRank maps a zero-based result rank to a relevance score.
func RelevanceForRank(rank int) float64 {
	score := relevanceBase - relevanceStep*float64(rank)
	if score < relevanceFloor {
		return relevanceFloor
	}
	if score > relevanceCeiling {
		return relevanceCeiling
	}
	return score
}
