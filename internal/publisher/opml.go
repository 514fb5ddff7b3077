package publisher

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"time"
)

// OPML document shape, per the OPML 1.0 feed-directory convention.
type opmlDoc struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    opmlHead `xml:"head"`
	Body    opmlBody `xml:"body"`
}

type opmlHead struct {
	Title        string `xml:"title"`
	DateCreated  string `xml:"dateCreated"`
	DateModified string `xml:"dateModified"`
	OwnerName    string `xml:"ownerName"`
}

type opmlBody struct {
	Outlines []opmlOutline `xml:"outline"`
}

type opmlOutline struct {
	Type     string        `xml:"type,attr,omitempty"`
	Text     string        `xml:"text,attr"`
	Title    string        `xml:"title,attr"`
	XMLURL   string        `xml:"xmlUrl,attr,omitempty"`
	HTMLURL  string        `xml:"htmlUrl,attr,omitempty"`
	Children []opmlOutline `xml:"outline,omitempty"`
}

// handleOPML lists every available feed: the all-items feed, one per
// source, and one per source/category. An empty catalog still yields a
// valid (if bare) document.
func (s *Server) handleOPML(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.ActiveSources(r.Context())
	if err != nil {
		s.serverError(w, "listing sources", err)
		return
	}

	base := s.cfg.FeedLink
	root := opmlOutline{
		Text:  s.cfg.FeedTitle,
		Title: s.cfg.FeedTitle,
		Children: []opmlOutline{{
			Type:    "rss",
			Text:    "All Items",
			Title:   "All Items",
			XMLURL:  base + "/feed",
			HTMLURL: base,
		}},
	}

	for _, source := range sources {
		entry := opmlOutline{
			Type:    "rss",
			Text:    source,
			Title:   source,
			XMLURL:  fmt.Sprintf("%s/feed/%s", base, source),
			HTMLURL: base,
		}
		categories, err := s.store.ActiveCategories(r.Context(), source)
		if err != nil {
			s.serverError(w, "listing categories", err)
			return
		}
		for _, category := range categories {
			title := fmt.Sprintf("%s / %s", source, category)
			entry.Children = append(entry.Children, opmlOutline{
				Type:    "rss",
				Text:    title,
				Title:   title,
				XMLURL:  fmt.Sprintf("%s/feed/%s/%s", base, source, category),
				HTMLURL: base,
			})
		}
		root.Children = append(root.Children, entry)
	}

	now := time.Now().UTC().Format(time.RFC1123)
	doc := opmlDoc{
		Version: "1.0",
		Head: opmlHead{
			Title:        s.cfg.FeedTitle,
			DateCreated:  now,
			DateModified: now,
			OwnerName:    "hamrss",
		},
		Body: opmlBody{Outlines: []opmlOutline{root}},
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		s.serverError(w, "encoding opml", err)
		return
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	fmt.Fprintf(w, "%s%s\n", xml.Header, out)
}
