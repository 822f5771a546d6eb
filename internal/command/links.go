package command

import (
	"context"
	"fmt"
	"io"
	"regexp"

	"github.com/sirupsen/logrus"
	"github.com/wiki-tool/wiki-tool-go/mwapi"
)

// CloneInterwikis adds an interwiki link for prefix newPrefix to every
// page that carries one for oldPrefix but lacks the new one. Candidates
// come from a full-text search for the old prefix.
func CloneInterwikis(ctx context.Context, api mwapi.API, log *logrus.Logger, oldPrefix, newPrefix, reason string, limit int) (Summary, error) {
	exprOld, err := regexp.Compile(`(?s)(^.*\[\[` + oldPrefix + `:(.+?)\]\])`)
	if err != nil {
		return Summary{}, fmt.Errorf("bad interwiki prefix %q: %w", oldPrefix, err)
	}
	exprNew, err := regexp.Compile(`(?s)^.*\[\[` + newPrefix + `:(.+?)\]\]`)
	if err != nil {
		return Summary{}, fmt.Errorf("bad interwiki prefix %q: %w", newPrefix, err)
	}

	namespaces, err := api.NamespaceList(ctx)
	if err != nil {
		return Summary{}, err
	}

	var sum Summary
	for _, ns := range namespaces {
		err := mwapi.SearchPages(api, oldPrefix, ns, limit).Each(ctx, func(p mwapi.PageRecord) error {
			sum.Processed++
			text, err := api.PageContent(ctx, p.Title)
			if err != nil {
				log.WithField("page", p.Title).WithError(err).Warn("can not load page")
				sum.Failed++
				return nil
			}
			if exprNew.MatchString(text) || !exprOld.MatchString(text) {
				sum.Skipped++
				return nil
			}
			newText := exprOld.ReplaceAllString(text, "${1}\n[["+newPrefix+":${2}]]")
			if err := api.EditPage(ctx, p.Title, newText, reason); err != nil {
				log.WithField("page", p.Title).WithError(err).Warn("can not edit page")
				sum.Failed++
				return nil
			}
			log.WithField("page", p.Title).Info("edited")
			sum.Succeeded++
			return nil
		})
		if err != nil {
			return sum, err
		}
	}
	return sum, nil
}

// ReplaceLinks rewrites links to page oldTitle into links to newTitle on
// every page linking to it, keeping the visible link text. Pages whose
// content does not change are skipped; protected pages are counted as
// failures without aborting the batch.
func ReplaceLinks(ctx context.Context, api mwapi.API, log *logrus.Logger, progressW io.Writer, oldTitle, newTitle, reason string, limit int) (Summary, error) {
	piped, err := regexp.Compile(`(?i)\[\[` + regexp.QuoteMeta(oldTitle) + `\|([^\]]+)\]\]`)
	if err != nil {
		return Summary{}, err
	}
	bare, err := regexp.Compile(`(?i)\[\[(` + regexp.QuoteMeta(oldTitle) + `)\]\]`)
	if err != nil {
		return Summary{}, err
	}

	backlinks, err := mwapi.Backlinks(api, oldTitle, nil, limit).Collect(ctx)
	if err != nil {
		return Summary{}, err
	}

	prog := newProgress(progressW, len(backlinks))
	defer prog.done()

	var sum Summary
	for _, link := range backlinks {
		prog.step()
		sum.Processed++

		text, err := api.PageContent(ctx, link.Title)
		if err != nil {
			log.WithField("page", link.Title).WithError(err).Warn("can not load page")
			sum.Failed++
			continue
		}
		newText := piped.ReplaceAllString(text, "[["+newTitle+"|${1}]]")
		newText = bare.ReplaceAllString(newText, "[["+newTitle+"|${1}]]")
		if newText == text {
			sum.Skipped++
			continue
		}
		if err := api.EditPage(ctx, link.Title, newText, reason); err != nil {
			log.WithField("page", link.Title).WithError(err).Warn("can not edit page")
			sum.Failed++
			continue
		}
		sum.Succeeded++
	}
	return sum, nil
}
