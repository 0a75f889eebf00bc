package expander

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/expanse-labs/expander-go/internal/httpclient"
)

// ErrNoMorePages is returned by NextPage once the listing is exhausted.
var ErrNoMorePages = errors.New("no more pages")

// Page is one page of a listing.
type Page[T any] struct {
	Items      []T
	TotalCount int
	NextURL    string
}

// Pages lazily iterates a paged listing, following the pagination.next URL
// until no cursor remains or a page comes back empty. It is forward-only and
// not restartable; start a new listing call to iterate again. Each page pull
// goes through the Executor, so token refresh-and-retry semantics apply per
// page.
type Pages[T any] struct {
	exec    *httpclient.Executor
	rateKey string
	nextURL string
	query   url.Values
	done    bool
}

func newPages[T any](exec *httpclient.Executor, startURL string, query url.Values, rateKey string) *Pages[T] {
	return &Pages[T]{
		exec:    exec,
		rateKey: rateKey,
		nextURL: startURL,
		query:   query,
	}
}

// HasMorePages reports whether NextPage can produce another page.
func (p *Pages[T]) HasMorePages() bool {
	return !p.done
}

// NextPage fetches and returns the next page of the listing.
func (p *Pages[T]) NextPage(ctx context.Context) (*Page[T], error) {
	if p.done {
		return nil, ErrNoMorePages
	}

	req := &httpclient.Request{
		Method: http.MethodGet,
		URL:    p.nextURL,
		Query:  p.query,
	}

	var env pageEnvelope[T]
	if err := p.exec.DoJSON(ctx, req, p.rateKey, &env); err != nil {
		p.done = true
		return nil, err
	}

	page := &Page[T]{Items: env.Data}
	if env.Meta != nil {
		page.TotalCount = env.Meta.TotalCount
	}
	if env.Pagination != nil {
		page.NextURL = env.Pagination.Next
	}

	if page.NextURL == "" || len(env.Data) == 0 {
		p.done = true
	} else {
		p.nextURL = page.NextURL
	}
	return page, nil
}

// Collect drains the remaining pages into a single slice.
func (p *Pages[T]) Collect(ctx context.Context) ([]T, error) {
	var all []T
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return all, err
		}
		all = append(all, page.Items...)
	}
	return all, nil
}
