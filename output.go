package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/biter777/countries"
	"github.com/mattn/go-isatty"

	"ripeipsearch/netrange"
	"ripeipsearch/record"
)

func getCountries(rec *record.Record) []Country {
	var out []Country
	for _, code := range rec.Countries() {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		c := Country{Code: strings.ToUpper(code)}
		if cc := countries.ByName(code); cc != countries.Unknown {
			c.Name = cc.String()
		}
		out = append(out, c)
	}
	return out
}

// resolveCountry accepts an ISO code or an English country name and returns
// the alpha-2 code used by the registry.
func resolveCountry(s string) (string, error) {
	cc := countries.ByName(strings.TrimSpace(s))
	if cc == countries.Unknown {
		return "", fmt.Errorf("unknown country %q", s)
	}
	return cc.Alpha2(), nil
}

func hasCountry(rec *record.Record, alpha2 string) bool {
	for _, code := range rec.Countries() {
		if strings.EqualFold(strings.TrimSpace(code), alpha2) {
			return true
		}
	}
	return false
}

// parseRecord resolves the address range of rec.
func parseRecord(rec *record.Record) (ParsedDocument, []netrange.Block, error) {
	if err := rec.Validate(); err != nil {
		return ParsedDocument{}, nil, err
	}

	blocks, err := netrange.Summarize(rec.LookupKey())
	if err != nil {
		return ParsedDocument{}, nil, err
	}

	networks := make([]string, len(blocks))
	for i, b := range blocks {
		networks[i] = b.String()
	}

	return ParsedDocument{
		Networks:     networks,
		NumAddresses: netrange.Total(blocks),
		Countries:    getCountries(rec),
		Details:      rec,
	}, blocks, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func writeDocument(w io.Writer, doc ParsedDocument, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(doc)
}

func writeNetworks(w io.Writer, blocks []netrange.Block) error {
	for _, b := range blocks {
		if _, err := fmt.Fprintln(w, b); err != nil {
			return err
		}
	}
	return nil
}
