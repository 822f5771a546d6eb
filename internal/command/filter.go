package command

import (
	"context"
	"fmt"
	"regexp"

	"github.com/sirupsen/logrus"
	"github.com/wiki-tool/wiki-tool-go/mwapi"
)

// FilterOptions selects the candidate pages of a filter-and-mutate
// command: pages whose title matches Filter from its start but not
// Exclude, within Namespaces,
// optionally resuming from FirstPage / FirstPageNamespace after an
// interrupted run.
type FilterOptions struct {
	Filter             string
	Exclude            string
	FirstPage          string
	FirstPageNamespace *int
	Reason             string
	Limit              int
	Namespaces         []int
}

// compileAnchored compiles expr so it matches from the start of the
// subject, the way the filter expressions are written.
func compileAnchored(expr string) (*regexp.Regexp, error) {
	return regexp.Compile(`\A(?:` + expr + `)`)
}

func (o FilterOptions) compile() (include, exclude *regexp.Regexp, err error) {
	include, err = compileAnchored(o.Filter)
	if err != nil {
		return nil, nil, fmt.Errorf("bad filter expression: %w", err)
	}
	if o.Exclude != "" {
		exclude, err = compileAnchored(o.Exclude)
		if err != nil {
			return nil, nil, fmt.Errorf("bad exclude expression: %w", err)
		}
	}
	return include, exclude, nil
}

// namespaces applies the resume namespace: listing restarts at the
// namespace the interrupted run stopped in.
func (o FilterOptions) namespaces() []int {
	if o.FirstPageNamespace == nil {
		return o.Namespaces
	}
	for i, ns := range o.Namespaces {
		if ns == *o.FirstPageNamespace {
			return o.Namespaces[i:]
		}
	}
	return o.Namespaces
}

// eachFilteredPage walks the matching pages in server listing order and
// calls fn for each. fn handles its own per-item failures; an error from
// the listing itself aborts the walk.
func eachFilteredPage(ctx context.Context, api mwapi.API, opts FilterOptions, redirectFilter string, fn func(title string)) error {
	include, exclude, err := opts.compile()
	if err != nil {
		return err
	}

	for _, ns := range opts.namespaces() {
		pager := mwapi.AllPages(api, ns, opts.Limit, opts.FirstPage, redirectFilter)
		err := pager.Each(ctx, func(p mwapi.PageRecord) error {
			if !include.MatchString(p.Title) {
				return nil
			}
			if exclude != nil && exclude.MatchString(p.Title) {
				return nil
			}
			fn(p.Title)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// DeletePages deletes every page matching the filter. Per-item failures
// are warned and counted; the batch continues.
func DeletePages(ctx context.Context, api mwapi.API, log *logrus.Logger, opts FilterOptions) (Summary, error) {
	var sum Summary
	err := eachFilteredPage(ctx, api, opts, mwapi.RedirectsAll, func(title string) {
		if err := api.DeletePage(ctx, title, opts.Reason); err != nil {
			log.WithField("page", title).WithError(err).Warn("can not delete page")
			sum.Failed++
			return
		}
		log.WithField("page", title).Info("deleted")
		sum.Succeeded++
	})
	return sum, err
}

// EditPages overwrites every matching non-redirect page with newText.
func EditPages(ctx context.Context, api mwapi.API, log *logrus.Logger, newText string, opts FilterOptions) (Summary, error) {
	var sum Summary
	err := eachFilteredPage(ctx, api, opts, mwapi.NonRedirects, func(title string) {
		if err := api.EditPage(ctx, title, newText, opts.Reason); err != nil {
			log.WithField("page", title).WithError(err).Warn("can not edit page")
			sum.Failed++
			return
		}
		log.WithField("page", title).Info("edited")
		sum.Succeeded++
	})
	return sum, err
}
