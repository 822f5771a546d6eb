package command

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/wiki-tool/wiki-tool-go/internal/listfile"
	"github.com/wiki-tool/wiki-tool-go/mwapi"
)

// DownloadImages downloads every image of a list file into dir. Missing
// remote files (404) are skipped silently; other per-item failures are
// warned and counted.
func DownloadImages(ctx context.Context, api mwapi.API, log *logrus.Logger, progressW io.Writer, list io.Reader, dir string) (Summary, error) {
	entries, err := listfile.Read(list)
	if err != nil {
		return Summary{}, err
	}

	prog := newProgress(progressW, len(entries))
	defer prog.done()

	var sum Summary
	for _, entry := range entries {
		prog.step()
		sum.Processed++

		if err := downloadOne(ctx, api, dir, entry); err != nil {
			if mwapi.IsItemNotFound(err) {
				sum.Skipped++
				continue
			}
			log.WithField("url", entry.URL).WithError(err).Warn("failed to download file")
			sum.Failed++
			continue
		}
		sum.Succeeded++
	}
	return sum, nil
}

func downloadOne(ctx context.Context, api mwapi.API, dir string, entry listfile.Entry) error {
	f, err := os.Create(filepath.Join(dir, entry.Filename))
	if err != nil {
		return err
	}
	if _, err := api.DownloadFile(ctx, entry.URL, f); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	return f.Close()
}

// UploadImage uploads a single local file under the given title.
func UploadImage(ctx context.Context, api mwapi.API, name string, file io.Reader) error {
	return api.UploadFile(ctx, name, file, mimeTypeFor(name), true)
}

// UploadImagesOptions configures the bulk image upload.
type UploadImagesOptions struct {
	// SkipMissing skips absent local files instead of failing the batch.
	SkipMissing bool
}

// UploadImages uploads every image of a list file from dir. Per-item
// upload failures are warned and counted; the skipped file names are
// returned for the final report.
func UploadImages(ctx context.Context, api mwapi.API, log *logrus.Logger, progressW io.Writer, list io.Reader, dir string, opts UploadImagesOptions) (Summary, []string, error) {
	entries, err := listfile.Read(list)
	if err != nil {
		return Summary{}, nil, err
	}

	prog := newProgress(progressW, len(entries))
	defer prog.done()

	var sum Summary
	var skipped []string
	for _, entry := range entries {
		prog.step()
		sum.Processed++

		path := filepath.Join(dir, entry.Filename)
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				if !opts.SkipMissing {
					return sum, skipped, fmt.Errorf("file %s not found", entry.Name)
				}
				log.WithField("file", entry.Name).Warn("file not found, skipping")
				skipped = append(skipped, entry.Name)
				sum.Skipped++
				continue
			}
			return sum, skipped, err
		}

		err = api.UploadFile(ctx, entry.Name, f, mimeTypeFor(entry.Name), true)
		f.Close()
		if err != nil {
			log.WithField("file", entry.Name).WithError(err).Warn("failed to upload file")
			sum.Failed++
			continue
		}
		sum.Succeeded++
	}
	return sum, skipped, nil
}

func mimeTypeFor(name string) string {
	return mime.TypeByExtension(filepath.Ext(name))
}
