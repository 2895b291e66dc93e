package ripedb

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"ripeipsearch/record"
)

// Quote returns term as a query literal. Terms made only of letters and
// digits stay bare, anything else is double-quoted.
func Quote(term string) string {
	if term != "" && strings.IndexFunc(term, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) < 0 {
		return term
	}
	return `"` + strings.ReplaceAll(term, `"`, `\"`) + `"`
}

// BuildQuery restricts a free-text term to inetnum and inet6num objects.
func BuildQuery(term string) string {
	return fmt.Sprintf("(%s) AND (object-type:inetnum OR object-type:inet6num)", Quote(term))
}

// SearchParams returns the query string for the page at start. Overrides
// replace the defaults, but q and start are always set from term and start.
func SearchParams(term string, start int, overrides url.Values) url.Values {
	params := url.Values{
		"facet":  {"true"},
		"format": {"xml"},
		"hl":     {"true"},
		"q":      {""},
		"start":  {"0"},
		"wt":     {"json"},
	}
	for k, v := range overrides {
		params[k] = append([]string(nil), v...)
	}
	params.Set("q", BuildQuery(term))
	params.Set("start", strconv.Itoa(start))
	return params
}

// Search returns the inetnum and inet6num records matching term.
//
// Pages are fetched lazily: the next request is only made once every record
// of the current page has been consumed, and stopping the range loop stops
// the search. Each range over the returned sequence starts a new search.
// The first error ends the sequence; nothing is retried.
func (c *Client) Search(ctx context.Context, term string, overrides url.Values) iter.Seq2[*record.Record, error] {
	return func(yield func(*record.Record, error) bool) {
		if strings.TrimSpace(term) == "" {
			yield(nil, ErrEmptyTerm)
			return
		}

		start := 0
		for {
			var page *Page
			err := c.limiter.Do(ctx, func() error {
				var err error
				page, err = c.Select(ctx, SearchParams(term, start, overrides))
				return err
			})
			if err != nil {
				yield(nil, err)
				return
			}

			if len(page.Items) > c.pageSize {
				yield(nil, &PageSizeError{Start: start, Got: len(page.Items), PageSize: c.pageSize})
				return
			}

			for i, item := range page.Items {
				rec, err := record.Normalize(item)
				if err != nil {
					yield(nil, fmt.Errorf("normalize result %d: %w", start+i, err))
					return
				}
				if !yield(rec, nil) {
					return
				}
			}

			start += len(page.Items)
			c.logger.Debug("search results processed", "processed", start, "total", page.Total)
			if start >= page.Total {
				return
			}
			if len(page.Items) == 0 {
				yield(nil, &APIError{Message: fmt.Sprintf("empty page at offset %d of %d results", start, page.Total)})
				return
			}
		}
	}
}
