package discovery

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractStructure parses markup and lists its forms, buttons, inputs, selects
// and links. Missing attributes become empty values; malformed markup yields
// whatever the parser recovers, never an error.
func ExtractStructure(markup string) PageStructure {
	structure := PageStructure{
		Forms:   []FormModel{},
		Buttons: []ButtonModel{},
		Inputs:  []InputModel{},
		Selects: []SelectModel{},
		Links:   []LinkModel{},
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return structure
	}

	doc.Find("form").Each(func(_ int, s *goquery.Selection) {
		structure.Forms = append(structure.Forms, FormModel{
			ID:     s.AttrOr("id", ""),
			Name:   s.AttrOr("name", ""),
			Class:  classList(s),
			Action: s.AttrOr("action", ""),
		})
	})

	// Document order across <button> and clickable <input>.
	doc.Find("button, input").Each(func(_ int, s *goquery.Selection) {
		btn := ButtonModel{
			ID:    s.AttrOr("id", ""),
			Name:  s.AttrOr("name", ""),
			Class: classList(s),
			Type:  s.AttrOr("type", ""),
		}
		if goquery.NodeName(s) == "input" {
			if btn.Type != "button" && btn.Type != "submit" {
				return
			}
			btn.Text = s.AttrOr("value", "")
		} else {
			btn.Text = strings.TrimSpace(s.Text())
		}
		structure.Buttons = append(structure.Buttons, btn)
	})

	doc.Find("input").Each(func(_ int, s *goquery.Selection) {
		structure.Inputs = append(structure.Inputs, InputModel{
			ID:          s.AttrOr("id", ""),
			Name:        s.AttrOr("name", ""),
			Class:       classList(s),
			Type:        s.AttrOr("type", "text"),
			Placeholder: s.AttrOr("placeholder", ""),
		})
	})

	doc.Find("select").Each(func(_ int, s *goquery.Selection) {
		options := []string{}
		s.Find("option").Each(func(_ int, o *goquery.Selection) {
			options = append(options, strings.TrimSpace(o.Text()))
		})
		structure.Selects = append(structure.Selects, SelectModel{
			ID:      s.AttrOr("id", ""),
			Name:    s.AttrOr("name", ""),
			Class:   classList(s),
			Options: options,
		})
	})

	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		structure.Links = append(structure.Links, LinkModel{
			ID:    s.AttrOr("id", ""),
			Class: classList(s),
			Text:  strings.TrimSpace(s.Text()),
			Href:  s.AttrOr("href", ""),
		})
	})

	return structure
}

func classList(s *goquery.Selection) []string {
	fields := strings.Fields(s.AttrOr("class", ""))
	if fields == nil {
		return []string{}
	}
	return fields
}
