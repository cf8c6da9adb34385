// Package discovery extracts interactive page structure from HTML and
// captures live pages for ingestion.
package discovery

// PageStructure lists the interactive elements of a page. Every list is
// non-nil so it serializes as [] when empty.
type PageStructure struct {
	Forms   []FormModel   `json:"forms"`
	Buttons []ButtonModel `json:"buttons"`
	Inputs  []InputModel  `json:"inputs"`
	Selects []SelectModel `json:"selects"`
	Links   []LinkModel   `json:"links"`
}

// FormModel describes a <form>
type FormModel struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Class  []string `json:"class"`
	Action string   `json:"action"`
}

// ButtonModel describes a <button> or an <input> of type button or submit
type ButtonModel struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Class []string `json:"class"`
	Text  string   `json:"text"`
	Type  string   `json:"type"`
}

// InputModel describes an <input>
type InputModel struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Class       []string `json:"class"`
	Type        string   `json:"type"`
	Placeholder string   `json:"placeholder"`
}

// SelectModel describes a <select> and the visible text of its options
type SelectModel struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Class   []string `json:"class"`
	Options []string `json:"options"`
}

// LinkModel describes an <a>
type LinkModel struct {
	ID    string   `json:"id"`
	Class []string `json:"class"`
	Text  string   `json:"text"`
	Href  string   `json:"href"`
}

// CapturedPage is the rendered markup of a live page
type CapturedPage struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	HTML  string `json:"html"`
}

// IsEmpty reports whether no interactive elements were found
func (p PageStructure) IsEmpty() bool {
	return len(p.Forms) == 0 && len(p.Buttons) == 0 && len(p.Inputs) == 0 &&
		len(p.Selects) == 0 && len(p.Links) == 0
}
