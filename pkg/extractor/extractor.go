package extractor

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	errs "pinscraper/pkg/errors"
)

// lineClampStyle marks the single-line caption divs of a board card
const lineClampStyle = "-webkit-line-clamp: 1;"

// Extractor turns one rendered list snapshot into raw records
type Extractor[R any] interface {
	Extract(html string) ([]R, error)
}

// RawBoard is a board card as rendered in the board search results
type RawBoard struct {
	URL          string
	PinCountText string
	Sections     int
	Name         string
}

// RecordKey identifies the board within one discovery run
func (b RawBoard) RecordKey() string { return b.URL }

// RawPin is a pin tile as rendered on a board page
type RawPin struct {
	URL      string
	ImageURL string
	Title    string
}

// RecordKey identifies the pin within one discovery run
func (p RawPin) RecordKey() string { return p.URL }

// BoardExtractor reads board cards from the board search results list
type BoardExtractor struct {
	// BaseURL resolves relative hrefs; empty keeps them as rendered
	BaseURL string
}

// NewBoardExtractor creates a board extractor resolving against baseURL
func NewBoardExtractor(baseURL string) *BoardExtractor {
	return &BoardExtractor{BaseURL: baseURL}
}

// Extract returns one RawBoard per anchor carrying an href
func (e *BoardExtractor) Extract(html string) ([]RawBoard, error) {
	doc, err := parse(html)
	if err != nil {
		return nil, err
	}

	var boards []RawBoard
	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}

		var countText strings.Builder
		sections := 0
		a.Find("div").Each(func(_ int, div *goquery.Selection) {
			style, _ := div.Attr("style")
			if strings.TrimSpace(style) != lineClampStyle {
				return
			}
			text := div.Text()
			countText.WriteString(text)
			if sections == 0 && strings.Contains(text, "section") {
				sections = parseSections(text)
			}
		})

		boards = append(boards, RawBoard{
			URL:          resolve(e.BaseURL, href),
			PinCountText: ParsePinCount(countText.String()),
			Sections:     sections,
			Name:         boardName(a),
		})
	})

	return boards, nil
}

// boardName is the text of the first div with a non-empty title
func boardName(a *goquery.Selection) string {
	var name string
	a.Find("div[title]").EachWithBreak(func(_ int, div *goquery.Selection) bool {
		if title, _ := div.Attr("title"); title != "" {
			name = strings.TrimSpace(div.Text())
			return false
		}
		return true
	})
	return name
}

// PinExtractor reads pin tiles from a board page
type PinExtractor struct {
	BaseURL string
}

// NewPinExtractor creates a pin extractor resolving against baseURL
func NewPinExtractor(baseURL string) *PinExtractor {
	return &PinExtractor{BaseURL: baseURL}
}

// Extract returns one RawPin per anchor linking to a pin
func (e *PinExtractor) Extract(html string) ([]RawPin, error) {
	doc, err := parse(html)
	if err != nil {
		return nil, err
	}

	var pins []RawPin
	doc.Find("a[href*='/pin/']").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		img := a.Find("img").First()

		pin := RawPin{URL: resolve(e.BaseURL, href)}
		if img.Length() > 0 {
			pin.ImageURL = imageSource(img)
			pin.Title = strings.TrimSpace(img.AttrOr("alt", ""))
		}
		if pin.Title == "" {
			pin.Title = strings.TrimSpace(a.AttrOr("aria-label", ""))
		}
		pins = append(pins, pin)
	})

	return pins, nil
}

var sizeSegment = regexp.MustCompile(`^(https?://i\.pinimg\.com/)\d+x\d*/`)

// imageSource picks the largest srcset candidate, falling back to src,
// and rewrites sized CDN paths to the original upload
func imageSource(img *goquery.Selection) string {
	src := img.AttrOr("src", "")
	if srcset := img.AttrOr("srcset", ""); srcset != "" {
		candidates := strings.Split(srcset, ",")
		last := strings.Fields(strings.TrimSpace(candidates[len(candidates)-1]))
		if len(last) > 0 {
			src = last[0]
		}
	}
	return sizeSegment.ReplaceAllString(src, "${1}originals/")
}

func parse(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, errs.Wrap(errs.KindTransientExtraction, "extractor.parse", fmt.Errorf("parse html: %w", err))
	}
	return doc, nil
}

// resolve makes href absolute against base when both parse
func resolve(base, href string) string {
	href = strings.TrimSpace(href)
	if base == "" {
		return href
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(ref).String()
}
