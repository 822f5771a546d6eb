package command

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wiki-tool/wiki-tool-go/mwapi"
)

// ListDeletedRevsOptions configures the deleted-revisions export.
type ListDeletedRevsOptions struct {
	// AllNamespaces exports every namespace; otherwise only the main one.
	AllNamespaces bool
	// EntriesPerFile is the chunk size of the output JSON documents.
	EntriesPerFile int
	Limit          int
}

// ListDeletedRevs streams deleted revisions into fixed-size JSON chunk
// files named entry-<index>.json under outDir. Requires authentication.
func ListDeletedRevs(ctx context.Context, api mwapi.API, outDir string, opts ListDeletedRevsOptions) error {
	namespaces := []int{0}
	if opts.AllNamespaces {
		var err error
		if namespaces, err = api.NamespaceList(ctx); err != nil {
			return err
		}
	}

	fileIndex := 0
	var chunk []mwapi.Revision

	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		if err := writeRevisionChunk(outDir, fileIndex, chunk); err != nil {
			return err
		}
		fileIndex++
		chunk = chunk[:0]
		return nil
	}

	for _, ns := range namespaces {
		err := mwapi.DeletedRevisions(api, ns, opts.Limit).Each(ctx, func(rev mwapi.Revision) error {
			chunk = append(chunk, rev)
			if len(chunk) == opts.EntriesPerFile {
				return flush()
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return flush()
}

func writeRevisionChunk(dir string, index int, revisions []mwapi.Revision) error {
	f, err := os.Create(filepath.Join(dir, fmt.Sprintf("entry-%d.json", index)))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(revisions); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
