package model

// Color is a named palette entry.
type Color struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Palette is the fixed set of event colours; the first entry is the default.
var Palette = []Color{
	{ID: 1, Name: "Flamingo", Value: "#e67c73"},
	{ID: 2, Name: "Sage", Value: "#33b679"},
	{ID: 3, Name: "Banana", Value: "#f6bf26"},
	{ID: 4, Name: "Tomato", Value: "#d50000"},
	{ID: 5, Name: "Lavender", Value: "#8e24aa"},
	{ID: 6, Name: "Peacock", Value: "#039be5"},
	{ID: 7, Name: "Graphite", Value: "#616161"},
	{ID: 8, Name: "Blueberry", Value: "#3f51b5"},
	{ID: 9, Name: "Grape", Value: "#7986cb"},
}

// DefaultColorID is the id of the first palette entry.
func DefaultColorID() int {
	return Palette[0].ID
}

// ColorByID looks up a palette entry, falling back to the default.
func ColorByID(id int) (Color, bool) {
	for _, c := range Palette {
		if c.ID == id {
			return c, true
		}
	}
	return Palette[0], false
}
