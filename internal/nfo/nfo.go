// Package nfo renders Emby/Kodi-compatible .nfo metadata documents for
// archived videos and the people involved in them.
package nfo

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/mozillazg/go-pinyin"

	bili_archiver "bili-archiver"
)

// Actor is a single <actor> element inside an item document.
type Actor struct {
	Name       string `xml:"name"`
	Role       string `xml:"role"`
	BilibiliID int64  `xml:"bilibili_id"`
}

// ItemDocument is the .nfo written next to an archived video file.
type ItemDocument struct {
	XMLName   xml.Name `xml:"video"`
	Title     string   `xml:"title"`
	SortTitle string   `xml:"sorttitle"`
	Plot      string   `xml:"plot"`
	Year      string   `xml:"year"`
	Premiered string   `xml:"premiered"`
	Runtime   int      `xml:"runtime"`
	Genre     string   `xml:"genre,omitempty"`
	Studio    string   `xml:"studio"`
	ID        string   `xml:"id"`
	Actors    []Actor  `xml:"actor"`
}

// UniqueID is a provider-tagged external ID, e.g.
// <uniqueid type="bilibili_id">123</uniqueid>.
type UniqueID struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

// PersonDocument is the person.nfo written into a cast member's directory
// under the Emby metadata/people tree. The platform person ID appears both as
// a plain field and as a typed external identifier.
type PersonDocument struct {
	XMLName    xml.Name   `xml:"person"`
	Title      string     `xml:"title"`
	SortTitle  string     `xml:"sorttitle"`
	BilibiliID int64      `xml:"bilibili_id"`
	UniqueIDs  []UniqueID `xml:"uniqueid"`
}

// ItemFromVideo builds the item document for a fetched video.
func ItemFromVideo(v *bili_archiver.VideoItem) ItemDocument {
	doc := ItemDocument{
		Title:     v.Title,
		SortTitle: SortKey(v.Title),
		Plot:      v.Description,
		Year:      v.Year(),
		Premiered: v.PremiereDate(),
		Runtime:   v.RuntimeMinutes(),
		Genre:     v.Category,
		Studio:    v.Owner.Name,
		ID:        v.ID,
	}
	for _, m := range v.Cast() {
		doc.Actors = append(doc.Actors, Actor{Name: m.Name, Role: m.Role, BilibiliID: m.ID})
	}
	return doc
}

// PersonFromCast builds the person document for a single cast member.
func PersonFromCast(m bili_archiver.CastMember) PersonDocument {
	return PersonDocument{
		Title:      m.Name,
		SortTitle:  SortKey(m.Name),
		BilibiliID: m.ID,
		UniqueIDs:  []UniqueID{{Type: "bilibili_id", Value: fmt.Sprint(m.ID)}},
	}
}

// Write renders a document as indented XML with the standard header.
func Write(w io.Writer, doc interface{}) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// SortKey derives a latin sort key from a (possibly Chinese) title, using the
// pinyin first letter of each Han character and passing other runes through
// unchanged. The result is lowercased.
func SortKey(s string) string {
	args := pinyin.NewArgs()
	args.Style = pinyin.FirstLetter
	args.Fallback = func(r rune, _ pinyin.Args) []string {
		return []string{string(r)}
	}
	var b strings.Builder
	for _, parts := range pinyin.Pinyin(s, args) {
		if len(parts) > 0 {
			b.WriteString(parts[0])
		}
	}
	return strings.ToLower(b.String())
}
