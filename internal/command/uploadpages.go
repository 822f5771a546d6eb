package command

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/wiki-tool/wiki-tool-go/mwapi"
)

// Page edit modes for UploadPages.
const (
	ModeAppend    = "append"
	ModeOverwrite = "overwrite"
)

// UploadPagesOptions configures the bulk page upload.
type UploadPagesOptions struct {
	// Dictionary reads the list file as a path-to-title JSON object
	// instead of a plain path array.
	Dictionary bool
	// ExtendedDictionary reads values as {"title": ..., "path": ...}
	// objects keyed arbitrarily.
	ExtendedDictionary bool
	Prefix             string
	Summary            string
	// Mode selects appending to or overwriting existing page text.
	Mode string
	// FirstPage skips that many entries, resuming an interrupted run.
	FirstPage int
}

type pageUpload struct {
	title string // empty: derive from path
	path  string
}

// UploadPages creates wiki pages from .txt files under dir, as named by
// a JSON list file. In append mode the existing page text is kept and
// the file content added after it.
func UploadPages(ctx context.Context, api mwapi.API, log *logrus.Logger, progressW io.Writer, dir string, list io.Reader, opts UploadPagesOptions) (int, error) {
	uploads, err := readPageUploads(list, opts)
	if err != nil {
		return 0, err
	}
	if opts.FirstPage > 0 {
		if opts.FirstPage >= len(uploads) {
			uploads = nil
		} else {
			uploads = uploads[opts.FirstPage:]
		}
	}

	prog := newProgress(progressW, len(uploads))
	defer prog.done()

	count := 0
	for _, upload := range uploads {
		prog.step()
		if err := uploadPage(ctx, api, dir, upload, opts); err != nil {
			log.WithField("path", upload.path).WithError(err).Warn("failed to upload page")
			continue
		}
		count++
	}
	return count, nil
}

func readPageUploads(list io.Reader, opts UploadPagesOptions) ([]pageUpload, error) {
	if !opts.Dictionary {
		var paths []string
		if err := json.NewDecoder(list).Decode(&paths); err != nil {
			return nil, fmt.Errorf("parsing page list: %w", err)
		}
		uploads := make([]pageUpload, 0, len(paths))
		for _, p := range paths {
			uploads = append(uploads, pageUpload{path: p})
		}
		return uploads, nil
	}

	if opts.ExtendedDictionary {
		var entries map[string]struct {
			Title string `json:"title"`
			Path  string `json:"path"`
		}
		if err := json.NewDecoder(list).Decode(&entries); err != nil {
			return nil, fmt.Errorf("parsing page dictionary: %w", err)
		}
		keys := make([]string, 0, len(entries))
		for k := range entries {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		uploads := make([]pageUpload, 0, len(entries))
		for _, k := range keys {
			uploads = append(uploads, pageUpload{title: entries[k].Title, path: entries[k].Path})
		}
		return uploads, nil
	}

	var entries map[string]string
	if err := json.NewDecoder(list).Decode(&entries); err != nil {
		return nil, fmt.Errorf("parsing page dictionary: %w", err)
	}
	paths := make([]string, 0, len(entries))
	for p := range entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	uploads := make([]pageUpload, 0, len(entries))
	for _, p := range paths {
		uploads = append(uploads, pageUpload{title: entries[p], path: p})
	}
	return uploads, nil
}

func uploadPage(ctx context.Context, api mwapi.API, dir string, upload pageUpload, opts UploadPagesOptions) error {
	content, err := os.ReadFile(filepath.Join(dir, upload.path))
	if err != nil {
		return err
	}

	title := upload.title
	if title == "" {
		title = strings.TrimSuffix(upload.path, filepath.Ext(upload.path))
	}
	title = opts.Prefix + title

	text := string(content)
	if opts.Mode == ModeAppend {
		old, err := api.PageContent(ctx, title)
		switch {
		case err == nil:
			text = old + "\n\n" + text
		case mwapi.IsItemNotFound(err):
			// New page; nothing to append to.
		default:
			return err
		}
	}
	return api.EditPage(ctx, title, text, opts.Summary)
}
