// Package anidb adapts the AniDB HTTP API to the catalog client: request
// URL construction on the way out, XML response normalization on the way
// back. All AniDB format quirks live here so additional sources can be
// added without touching the client core.
package anidb

import (
	"bytes"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/ranmori/anidb-catalog-client/pkg/catalog"
)

const (
	// DefaultBaseURL is the AniDB HTTP API endpoint.
	DefaultBaseURL = "http://api.anidb.net:9001/httpapi"

	// protoVersion is the AniDB HTTP API protocol version.
	protoVersion = 1

	// cdnBaseURL is where AniDB serves cover images from.
	cdnBaseURL = "https://cdn-eu.anidb.net/images/main/"

	// bannedGuidance is surfaced with every Banned failure. AniDB bans are
	// lifted on their own after several hours; retrying sooner extends them.
	bannedGuidance = "AniDB has banned this client for excessive requests; " +
		"stop all lookups and retry manually after several hours"
)

// imageExtensions are the cover file extensions AniDB is known to serve.
var imageExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

var digitsOnly = regexp.MustCompile(`^[0-9]+$`)

// Source implements catalog.Source for AniDB.
type Source struct {
	baseURL       string
	clientName    string
	clientVersion int
}

// NewSource creates an AniDB source adapter. clientName must be a client
// registered with AniDB; unregistered names are rejected upstream.
func NewSource(clientName string, clientVersion int) *Source {
	return &Source{
		baseURL:       DefaultBaseURL,
		clientName:    clientName,
		clientVersion: clientVersion,
	}
}

// SetBaseURL overrides the API endpoint (for testing and mirrors).
func (s *Source) SetBaseURL(u string) {
	s.baseURL = u
}

// Name implements catalog.Source.
func (s *Source) Name() string {
	return "anidb"
}

// RequestURL implements catalog.Source.
func (s *Source) RequestURL(id int) string {
	q := url.Values{}
	q.Set("request", "anime")
	q.Set("client", s.clientName)
	q.Set("clientver", strconv.Itoa(s.clientVersion))
	q.Set("protover", strconv.Itoa(protoVersion))
	q.Set("aid", strconv.Itoa(id))
	return s.baseURL + "?" + q.Encode()
}

// Parse implements catalog.Source. AniDB answers errors as a 200 response
// with an <error> root element, so classification happens on the body.
func (s *Source) Parse(raw []byte, id int) (*catalog.Record, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, &catalog.Error{
			ID:      id,
			Kind:    catalog.KindMalformed,
			Message: fmt.Sprintf("unparseable response: %s", payloadFragment(raw)),
			Err:     err,
		}
	}

	if errNode := xmlquery.FindOne(doc, "//error"); errNode != nil {
		text := strings.TrimSpace(errNode.InnerText())
		if strings.Contains(strings.ToLower(text), "banned") {
			return nil, &catalog.Error{ID: id, Kind: catalog.KindBanned, Message: bannedGuidance}
		}
		return nil, &catalog.Error{ID: id, Kind: catalog.KindNotFound, Message: text}
	}

	animeNode := xmlquery.FindOne(doc, "//anime")
	if animeNode == nil {
		return nil, &catalog.Error{
			ID:      id,
			Kind:    catalog.KindMalformed,
			Message: fmt.Sprintf("no anime element: %s", payloadFragment(raw)),
		}
	}

	rec := &catalog.Record{ID: id}

	if aid := animeNode.SelectAttr("id"); aid != "" {
		n, err := strconv.Atoi(aid)
		if err != nil {
			return nil, &catalog.Error{
				ID:      id,
				Kind:    catalog.KindMalformed,
				Message: fmt.Sprintf("non-numeric anime id %q", aid),
				Err:     err,
			}
		}
		rec.ID = n
	}

	s.parseTitles(animeNode, rec)
	if rec.PrimaryTitle == "" {
		return nil, &catalog.Error{
			ID:      id,
			Kind:    catalog.KindMalformed,
			Message: fmt.Sprintf("no main title: %s", payloadFragment(raw)),
		}
	}

	if n := xmlquery.FindOne(animeNode, "startdate"); n != nil {
		rec.ReleaseDate = strings.TrimSpace(n.InnerText())
	}

	if n := xmlquery.FindOne(animeNode, "ratings/permanent"); n != nil {
		if rating, err := strconv.ParseFloat(strings.TrimSpace(n.InnerText()), 64); err == nil {
			rec.Rating = rating
		}
		if votes, err := strconv.Atoi(n.SelectAttr("count")); err == nil {
			rec.RatingVotes = votes
		}
	}

	if n := xmlquery.FindOne(animeNode, "picture"); n != nil {
		rec.CoverURL, rec.CoverUnverified = buildCoverRef(n.InnerText())
	}

	return rec, nil
}

// parseTitles fills PrimaryTitle from the main title and LocalizedTitle
// from the English official title.
func (s *Source) parseTitles(animeNode *xmlquery.Node, rec *catalog.Record) {
	for _, n := range xmlquery.Find(animeNode, "titles/title") {
		title := strings.TrimSpace(n.InnerText())
		if title == "" {
			continue
		}
		switch n.SelectAttr("type") {
		case "main":
			if rec.PrimaryTitle == "" {
				rec.PrimaryTitle = title
			}
		case "official":
			// The lang attribute lives in the xml namespace.
			if rec.LocalizedTitle == "" && n.SelectAttr("xml:lang") == "en" {
				rec.LocalizedTitle = title
			}
		}
	}
}

// buildCoverRef turns the file reference embedded in <picture> into a CDN
// URL. The reference is stripped of any path prefix and known extension;
// the remaining stem must be purely numeric before a URL is constructed.
// A reference that fails the shape check is kept verbatim and flagged, so
// the caller can decide what to do with it instead of losing it silently.
// An absent reference yields an empty URL, never a guessed one.
func buildCoverRef(rawRef string) (string, bool) {
	ref := strings.TrimSpace(rawRef)
	if ref == "" {
		return "", false
	}

	base := path.Base(ref)
	stem := base
	for _, ext := range imageExtensions {
		if strings.HasSuffix(strings.ToLower(stem), ext) {
			stem = stem[:len(stem)-len(ext)]
			break
		}
	}

	if digitsOnly.MatchString(stem) {
		return cdnBaseURL + base, false
	}
	return ref, true
}

// payloadFragment returns the leading bytes of a response body for
// Malformed diagnostics without dumping the whole payload into logs.
func payloadFragment(raw []byte) string {
	const max = 120
	s := strings.TrimSpace(string(raw))
	if len(s) > max {
		return s[:max] + "..."
	}
	if s == "" {
		return "(empty body)"
	}
	return s
}
