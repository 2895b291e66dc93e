package ripedb

import "ripeipsearch/record"

// Page is one slice of the full-text search result set.
type Page struct {
	Total int // numFound: matches across all pages
	Start int // offset of the first item
	Items [][]record.Attribute
}

type selectStr struct {
	Str struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"str"`
}

type selectDoc struct {
	Doc struct {
		Strs []selectStr `json:"strs"`
	} `json:"doc"`
}

type selectResult struct {
	Name     string      `json:"name"`
	NumFound int         `json:"numFound"`
	Start    int         `json:"start"`
	Docs     []selectDoc `json:"docs"`
}

type selectResponse struct {
	Result *selectResult `json:"result"`
}

func (r *selectResult) page() *Page {
	p := &Page{
		Total: r.NumFound,
		Start: r.Start,
		Items: make([][]record.Attribute, 0, len(r.Docs)),
	}
	for _, d := range r.Docs {
		attrs := make([]record.Attribute, 0, len(d.Doc.Strs))
		for _, s := range d.Doc.Strs {
			attrs = append(attrs, record.Attribute{Name: s.Str.Name, Value: s.Str.Value})
		}
		p.Items = append(p.Items, attrs)
	}
	return p
}
