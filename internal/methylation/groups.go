package methylation

import (
	"strconv"
	"strings"

	"methylexplorer/internal/tabular"
)

// Required headers of the group table. The description header carries a leading space in
// the files produced by the sequencing facility; it is matched exactly.
const (
	DescriptionHeader = " description"
	BarcodeHeader     = "barcode"
)

// GroupEntry is one row of the group table.
type GroupEntry struct {
	Description string `json:"description"`
	Barcode     string `json:"barcode"`
	Seq         int    `json:"seq"`
	Label       string `json:"group_name"`
}

// LoadGroups reads the comma separated group table at path and disambiguates its
// descriptions.
func LoadGroups(path string) ([]GroupEntry, error) {
	frame, err := tabular.ReadFile(path, ',')
	if err != nil {
		return nil, classifyReadError(path, err)
	}
	if !frame.Has(DescriptionHeader) {
		return nil, &SchemaError{Path: path, Header: DescriptionHeader}
	}
	if !frame.Has(BarcodeHeader) {
		return nil, &SchemaError{Path: path, Header: BarcodeHeader}
	}
	return Disambiguate(frame.Col(DescriptionHeader), frame.Col(BarcodeHeader)), nil
}

// Disambiguate numbers rows per description, 1-based in row order, and builds the label as
// the raw description followed by the number, stripped of surrounding whitespace: " a "
// row 1 is "a 1". Rows are numbered per stripped description, so " a " and "a" share a
// sequence. When a label is already taken (description "a1" row 1 against description "a"
// row 11) the number keeps counting until the label is free.
func Disambiguate(descriptions, barcodes []string) []GroupEntry {
	entries := make([]GroupEntry, 0, len(descriptions))
	seq := make(map[string]int)
	used := make(map[string]struct{}, len(descriptions))

	for i, raw := range descriptions {
		desc := strings.TrimSpace(raw)
		barcode := ""
		if i < len(barcodes) {
			barcode = strings.TrimSpace(barcodes[i])
		}

		n := seq[desc] + 1
		label := strings.TrimSpace(raw + strconv.Itoa(n))
		for {
			if _, taken := used[label]; !taken {
				break
			}
			n++
			label = strings.TrimSpace(raw + strconv.Itoa(n))
		}
		seq[desc] = n
		used[label] = struct{}{}

		entries = append(entries, GroupEntry{
			Description: desc,
			Barcode:     barcode,
			Seq:         n,
			Label:       label,
		})
	}
	return entries
}

// GroupCatalog resolves barcodes to group labels. It is read-only after construction.
type GroupCatalog struct {
	entries   []GroupEntry
	byBarcode map[string]int
}

// NewGroupCatalog indexes entries by barcode. When a barcode repeats, the first row wins.
func NewGroupCatalog(entries []GroupEntry) *GroupCatalog {
	c := &GroupCatalog{
		entries:   append([]GroupEntry(nil), entries...),
		byBarcode: make(map[string]int, len(entries)),
	}
	for i, e := range c.entries {
		key := canonicalBarcode(e.Barcode)
		if _, dup := c.byBarcode[key]; dup {
			continue
		}
		c.byBarcode[key] = i
	}
	return c
}

// OpenGroupCatalog loads the group table at path into a catalog.
func OpenGroupCatalog(path string) (*GroupCatalog, error) {
	entries, err := LoadGroups(path)
	if err != nil {
		return nil, err
	}
	return NewGroupCatalog(entries), nil
}

// Lookup returns the entry for barcode. Digit-only barcodes compare numerically, so "001"
// finds barcode "1".
func (c *GroupCatalog) Lookup(barcode string) (GroupEntry, bool) {
	if c == nil {
		return GroupEntry{}, false
	}
	i, ok := c.byBarcode[canonicalBarcode(barcode)]
	if !ok {
		return GroupEntry{}, false
	}
	return c.entries[i], true
}

// Entries returns the catalog rows in table order.
func (c *GroupCatalog) Entries() []GroupEntry {
	if c == nil {
		return nil
	}
	return append([]GroupEntry(nil), c.entries...)
}

// Labels returns every group label in table order.
func (c *GroupCatalog) Labels() []string {
	if c == nil {
		return []string{}
	}
	labels := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		labels = append(labels, e.Label)
	}
	return labels
}

func canonicalBarcode(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return s
		}
	}
	s = strings.TrimLeft(s, "0")
	if s == "" {
		return "0"
	}
	return s
}
