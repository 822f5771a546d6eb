package command

import (
	"context"
	"fmt"
	"io"

	"github.com/wiki-tool/wiki-tool-go/internal/listfile"
	"github.com/wiki-tool/wiki-tool-go/mwapi"
)

// NamespaceImages is the file-description namespace ID.
const NamespaceImages = 6

// ListImagesOptions configures the image listing commands.
type ListImagesOptions struct {
	Limit int
	// ConfineEncoding, when set, drops characters outside the named
	// encoding from titles and filenames.
	ConfineEncoding string
	// IDsLimit bounds page IDs per imageinfo call (category listing).
	IDsLimit int
}

// ListImages streams every image in the wiki as FILE2 records.
func ListImages(ctx context.Context, api mwapi.API, out io.Writer, opts ListImagesOptions) error {
	i := 0
	return mwapi.AllImages(api, opts.Limit).Each(ctx, func(img mwapi.ImageRecord) error {
		if err := writeImageEntry(out, img, i, opts.ConfineEncoding); err != nil {
			return err
		}
		i++
		return nil
	})
}

// ListCategoryImages streams the images of one category as FILE2
// records: category members are resolved to page IDs, then to URLs in
// chunked imageinfo lookups.
func ListCategoryImages(ctx context.Context, api mwapi.API, out, progressW io.Writer, category string, opts ListImagesOptions) error {
	ns := NamespaceImages
	members, err := mwapi.CategoryMembers(api, category, &ns, "file", opts.Limit).Collect(ctx)
	if err != nil {
		return err
	}
	pageIDs := make([]int64, 0, len(members))
	for _, m := range members {
		pageIDs = append(pageIDs, m.PageID)
	}

	prog := newProgress(progressW, len(pageIDs))
	defer prog.done()

	i := 0
	return mwapi.PageImages(api, pageIDs, opts.IDsLimit).Each(ctx, func(img mwapi.ImageRecord) error {
		if err := writeImageEntry(out, img, i, opts.ConfineEncoding); err != nil {
			return err
		}
		i++
		prog.step()
		return nil
	})
}

func writeImageEntry(out io.Writer, img mwapi.ImageRecord, index int, confineEncoding string) error {
	name, err := listfile.StripNamespace(img.Title)
	if err != nil {
		return err
	}
	filename := listfile.SafeFilename(index, name)
	if confineEncoding != "" {
		if name, err = listfile.ConfineToEncoding(name, confineEncoding); err != nil {
			return err
		}
		if filename, err = listfile.ConfineToEncoding(filename, confineEncoding); err != nil {
			return err
		}
	}
	return listfile.Write(out, listfile.Entry{Name: name, URL: img.URL, Filename: filename})
}

// ListPages streams the page titles of every namespace, one per line.
func ListPages(ctx context.Context, api mwapi.API, out io.Writer, limit int) error {
	namespaces, err := api.NamespaceList(ctx)
	if err != nil {
		return err
	}
	for _, ns := range namespaces {
		if err := ListNamespacePages(ctx, api, out, ns, limit); err != nil {
			return err
		}
	}
	return nil
}

// ListNamespacePages streams the page titles of one namespace.
func ListNamespacePages(ctx context.Context, api mwapi.API, out io.Writer, namespace, limit int) error {
	return mwapi.AllPages(api, namespace, limit, "", mwapi.RedirectsAll).Each(ctx, func(p mwapi.PageRecord) error {
		_, err := fmt.Fprintln(out, p.Title)
		return err
	})
}
