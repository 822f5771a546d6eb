// Command wikitool performs bulk maintenance operations against a
// MediaWiki wiki: listing and downloading images, exporting deleted
// revisions, mass edits and deletions, uploads and vote power counting.
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/wiki-tool/wiki-tool-go/internal/command"
	"github.com/wiki-tool/wiki-tool-go/internal/weights"
	"github.com/wiki-tool/wiki-tool-go/mwapi"
)

const credentialsEnv = "MEDIAWIKI_CREDENTIALS"

var log = logrus.New()

func main() {
	// Best-effort .env bootstrap; real environment variables win.
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "wikitool",
		Usage: "bulk maintenance operations for MediaWiki wikis",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "credentials",
				Usage: "LOGIN:PASSWORD pair for MediaWiki",
			},
			&cli.BoolFlag{
				Name:  "login",
				Usage: "log in even for commands that do not require authentication",
			},
			&cli.StringFlag{
				Name:  "mediawiki-version",
				Value: "1.31",
				Usage: "MediaWiki version",
			},
			&cli.Float64Flag{
				Name:  "requests-interval",
				Usage: "delay between requests in seconds",
			},
			&cli.StringFlag{
				Name:  "user-agent",
				Value: "WikiTool",
				Usage: "User-Agent value",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "info",
				Usage: "log level",
			},
		},
		Before: func(c *cli.Context) error {
			level, err := logrus.ParseLevel(c.String("log-level"))
			if err != nil {
				return err
			}
			log.SetLevel(level)
			log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
			return nil
		},
		Commands: []*cli.Command{
			listImagesCommand(),
			listCategoryImagesCommand(),
			listPagesCommand(),
			listNamespacePagesCommand(),
			listDeletedRevsCommand(),
			deletePagesCommand(),
			editPagesCommand(),
			cloneInterwikisCommand(),
			replaceLinksCommand(),
			downloadImagesCommand(),
			uploadImageCommand(),
			uploadImagesCommand(),
			uploadPagesCommand(),
			voteCountCommand(),
		},
	}
}

type credentials struct {
	login    string
	password string
}

// parseCredentials reads the LOGIN:PASSWORD pair from the flag or the
// environment. Absent credentials are allowed for read-only commands.
func parseCredentials(c *cli.Context) (*credentials, error) {
	raw := c.String("credentials")
	if raw == "" {
		raw = os.Getenv(credentialsEnv)
	}
	if raw == "" {
		return nil, nil
	}
	login, password, ok := strings.Cut(raw, ":")
	if !ok || login == "" {
		return nil, fmt.Errorf("bad credentials format, expected LOGIN:PASSWORD")
	}
	return &credentials{login: login, password: password}, nil
}

// newAPI builds a client for the site and logs in when the global
// --login flag demands it.
func newAPI(c *cli.Context, siteURL string) (mwapi.API, error) {
	api, err := buildAPI(c, siteURL)
	if err != nil {
		return nil, err
	}
	if c.Bool("login") {
		if err := login(c, api); err != nil {
			return nil, err
		}
	}
	return api, nil
}

// newAuthAPI builds a client and always logs in; credentials must be
// present.
func newAuthAPI(c *cli.Context, siteURL string) (mwapi.API, error) {
	api, err := buildAPI(c, siteURL)
	if err != nil {
		return nil, err
	}
	if err := login(c, api); err != nil {
		return nil, err
	}
	return api, nil
}

func buildAPI(c *cli.Context, siteURL string) (mwapi.API, error) {
	interval := time.Duration(c.Float64("requests-interval") * float64(time.Second))
	return mwapi.New(
		c.String("mediawiki-version"),
		siteURL,
		mwapi.WithUserAgent(c.String("user-agent")),
		mwapi.WithThrottle(interval),
	)
}

func login(c *cli.Context, api mwapi.API) error {
	creds, err := parseCredentials(c)
	if err != nil {
		return err
	}
	if creds == nil {
		return fmt.Errorf("user credentials not given")
	}
	return api.Login(c.Context, creds.login, creds.password)
}

// outputFile opens the --output-file flag target, defaulting to stdout.
func outputFile(c *cli.Context) (io.WriteCloser, error) {
	path := c.String("output-file")
	if path == "" {
		return nopWriteCloser{os.Stdout}, nil
	}
	return os.Create(path)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func requireArgs(c *cli.Context, names ...string) error {
	if c.NArg() != len(names) {
		return fmt.Errorf("expected arguments: %s", strings.Join(names, " "))
	}
	return nil
}

func apiLimitFlag() *cli.IntFlag {
	return &cli.IntFlag{
		Name:  "api-limit",
		Value: 500,
		Usage: "maximum number of entries per API request",
	}
}

func outputFileFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "output-file",
		Usage: "text file to write the list to (default: stdout)",
	}
}

func confineEncodingFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "confine-encoding",
		Usage: "encoding to confine file names to (drop characters outside it)",
	}
}

func listImagesCommand() *cli.Command {
	return &cli.Command{
		Name:      "list-images",
		Usage:     "list images from the wiki (titles and URLs)",
		ArgsUsage: "API_URL",
		Flags:     []cli.Flag{outputFileFlag(), apiLimitFlag(), confineEncodingFlag()},
		Action: func(c *cli.Context) error {
			if err := requireArgs(c, "API_URL"); err != nil {
				return err
			}
			api, err := newAPI(c, c.Args().Get(0))
			if err != nil {
				return err
			}
			out, err := outputFile(c)
			if err != nil {
				return err
			}
			defer out.Close()
			return command.ListImages(c.Context, api, out, command.ListImagesOptions{
				Limit:           c.Int("api-limit"),
				ConfineEncoding: c.String("confine-encoding"),
			})
		},
	}
}

func listCategoryImagesCommand() *cli.Command {
	return &cli.Command{
		Name:      "list-category-images",
		Usage:     "list images of one category (titles and URLs)",
		ArgsUsage: "API_URL CATEGORY",
		Flags: []cli.Flag{
			outputFileFlag(), apiLimitFlag(), confineEncodingFlag(),
			&cli.IntFlag{
				Name:  "api-image-ids-limit",
				Value: 50,
				Usage: "maximum number of image IDs passed per API request",
			},
		},
		Action: func(c *cli.Context) error {
			if err := requireArgs(c, "API_URL", "CATEGORY"); err != nil {
				return err
			}
			api, err := newAPI(c, c.Args().Get(0))
			if err != nil {
				return err
			}
			out, err := outputFile(c)
			if err != nil {
				return err
			}
			defer out.Close()
			return command.ListCategoryImages(c.Context, api, out, os.Stderr, c.Args().Get(1), command.ListImagesOptions{
				Limit:           c.Int("api-limit"),
				ConfineEncoding: c.String("confine-encoding"),
				IDsLimit:        c.Int("api-image-ids-limit"),
			})
		},
	}
}

func listPagesCommand() *cli.Command {
	return &cli.Command{
		Name:      "list-pages",
		Usage:     "list page names of every namespace",
		ArgsUsage: "API_URL",
		Flags:     []cli.Flag{outputFileFlag(), apiLimitFlag()},
		Action: func(c *cli.Context) error {
			if err := requireArgs(c, "API_URL"); err != nil {
				return err
			}
			api, err := newAPI(c, c.Args().Get(0))
			if err != nil {
				return err
			}
			out, err := outputFile(c)
			if err != nil {
				return err
			}
			defer out.Close()
			return command.ListPages(c.Context, api, out, c.Int("api-limit"))
		},
	}
}

func listNamespacePagesCommand() *cli.Command {
	return &cli.Command{
		Name:      "list-namespace-pages",
		Usage:     "list page names of one namespace",
		ArgsUsage: "API_URL NAMESPACE",
		Flags:     []cli.Flag{outputFileFlag(), apiLimitFlag()},
		Action: func(c *cli.Context) error {
			if err := requireArgs(c, "API_URL", "NAMESPACE"); err != nil {
				return err
			}
			ns, err := parseInt(c.Args().Get(1), "NAMESPACE")
			if err != nil {
				return err
			}
			api, err := newAPI(c, c.Args().Get(0))
			if err != nil {
				return err
			}
			out, err := outputFile(c)
			if err != nil {
				return err
			}
			defer out.Close()
			return command.ListNamespacePages(c.Context, api, out, ns, c.Int("api-limit"))
		},
	}
}

func listDeletedRevsCommand() *cli.Command {
	return &cli.Command{
		Name:      "list-deletedrevs",
		Usage:     "export deleted revisions as chunked JSON files",
		ArgsUsage: "OUTPUT_DIRECTORY API_URL",
		Flags: []cli.Flag{
			apiLimitFlag(),
			&cli.BoolFlag{
				Name:  "all-namespaces",
				Usage: "list for all namespaces instead of the main one",
			},
			&cli.IntFlag{
				Name:  "file-entry-num",
				Value: 500,
				Usage: "number of entries per JSON file",
			},
		},
		Action: func(c *cli.Context) error {
			if err := requireArgs(c, "OUTPUT_DIRECTORY", "API_URL"); err != nil {
				return err
			}
			api, err := newAuthAPI(c, c.Args().Get(1))
			if err != nil {
				return err
			}
			return command.ListDeletedRevs(c.Context, api, c.Args().Get(0), command.ListDeletedRevsOptions{
				AllNamespaces:  c.Bool("all-namespaces"),
				EntriesPerFile: c.Int("file-entry-num"),
				Limit:          c.Int("api-limit"),
			})
		},
	}
}

func filterFlags(defaultReason string) []cli.Flag {
	return []cli.Flag{
		apiLimitFlag(),
		&cli.StringFlag{
			Name:  "exclude-expression",
			Usage: "additional expression to exclude pages",
		},
		&cli.StringFlag{
			Name:  "first-page",
			Usage: "first page to process (resume point)",
		},
		&cli.IntFlag{
			Name:  "first-page-namespace",
			Usage: "namespace of the first page to process",
		},
		&cli.StringFlag{
			Name:  "reason",
			Value: defaultReason,
			Usage: "edit or deletion reason",
		},
		&cli.IntSliceFlag{
			Name:  "namespace",
			Value: cli.NewIntSlice(0),
			Usage: "page namespace (repeatable)",
		},
	}
}

func filterOptions(c *cli.Context) command.FilterOptions {
	opts := command.FilterOptions{
		Filter:     c.Args().Get(0),
		Exclude:    c.String("exclude-expression"),
		FirstPage:  c.String("first-page"),
		Reason:     c.String("reason"),
		Limit:      c.Int("api-limit"),
		Namespaces: c.IntSlice("namespace"),
	}
	if c.IsSet("first-page-namespace") {
		ns := c.Int("first-page-namespace")
		opts.FirstPageNamespace = &ns
	}
	return opts
}

func deletePagesCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete-pages",
		Usage:     "delete pages matching a regular expression",
		ArgsUsage: "FILTER_EXPRESSION API_URL",
		Flags:     filterFlags("Mass deletion"),
		Action: func(c *cli.Context) error {
			if err := requireArgs(c, "FILTER_EXPRESSION", "API_URL"); err != nil {
				return err
			}
			api, err := newAuthAPI(c, c.Args().Get(1))
			if err != nil {
				return err
			}
			sum, err := command.DeletePages(c.Context, api, log, filterOptions(c))
			if err != nil {
				return err
			}
			fmt.Printf("%d pages deleted\n", sum.Succeeded)
			if sum.Failed > 0 {
				fmt.Printf("%d pages not deleted\n", sum.Failed)
			}
			return nil
		},
	}
}

func editPagesCommand() *cli.Command {
	return &cli.Command{
		Name:      "edit-pages",
		Usage:     "overwrite pages matching a regular expression with new text",
		ArgsUsage: "FILTER_EXPRESSION NEW_TEXT API_URL",
		Flags:     filterFlags("Mass edit"),
		Action: func(c *cli.Context) error {
			if err := requireArgs(c, "FILTER_EXPRESSION", "NEW_TEXT", "API_URL"); err != nil {
				return err
			}
			api, err := newAuthAPI(c, c.Args().Get(2))
			if err != nil {
				return err
			}
			sum, err := command.EditPages(c.Context, api, log, c.Args().Get(1), filterOptions(c))
			if err != nil {
				return err
			}
			fmt.Printf("%d pages edited\n", sum.Succeeded)
			if sum.Failed > 0 {
				fmt.Printf("%d pages not edited\n", sum.Failed)
			}
			return nil
		},
	}
}

func cloneInterwikisCommand() *cli.Command {
	return &cli.Command{
		Name:      "edit-pages-clone-interwikis",
		Usage:     "add interwiki NEW to pages containing interwiki OLD but not NEW",
		ArgsUsage: "API_URL OLD NEW",
		Flags: []cli.Flag{
			apiLimitFlag(),
			&cli.StringFlag{
				Name:  "reason",
				Value: "Mass interwiki fix",
				Usage: "edit reason",
			},
		},
		Action: func(c *cli.Context) error {
			if err := requireArgs(c, "API_URL", "OLD", "NEW"); err != nil {
				return err
			}
			api, err := newAuthAPI(c, c.Args().Get(0))
			if err != nil {
				return err
			}
			sum, err := command.CloneInterwikis(
				c.Context, api, log, c.Args().Get(1), c.Args().Get(2),
				c.String("reason"), c.Int("api-limit"))
			if err != nil {
				return err
			}
			fmt.Printf("%d pages edited\n", sum.Succeeded)
			return nil
		},
	}
}

func replaceLinksCommand() *cli.Command {
	return &cli.Command{
		Name:      "replace-links",
		Usage:     "replace links to page OLD by links to page NEW",
		ArgsUsage: "API_URL OLD NEW",
		Flags: []cli.Flag{
			apiLimitFlag(),
			&cli.StringFlag{
				Name:  "reason",
				Value: "Replacing links",
				Usage: "edit reason",
			},
		},
		Action: func(c *cli.Context) error {
			if err := requireArgs(c, "API_URL", "OLD", "NEW"); err != nil {
				return err
			}
			api, err := newAuthAPI(c, c.Args().Get(0))
			if err != nil {
				return err
			}
			sum, err := command.ReplaceLinks(
				c.Context, api, log, os.Stderr, c.Args().Get(1), c.Args().Get(2),
				c.String("reason"), c.Int("api-limit"))
			if err != nil {
				return err
			}
			fmt.Printf("%d pages processed, %d pages edited, %d were not edited due to protection level\n",
				sum.Processed, sum.Succeeded, sum.Failed)
			return nil
		},
	}
}

func downloadImagesCommand() *cli.Command {
	return &cli.Command{
		Name:      "download-images",
		Usage:     "download images listed in a file",
		ArgsUsage: "LIST_FILE DOWNLOAD_DIR",
		Action: func(c *cli.Context) error {
			if err := requireArgs(c, "LIST_FILE", "DOWNLOAD_DIR"); err != nil {
				return err
			}
			list, err := os.Open(c.Args().Get(0))
			if err != nil {
				return err
			}
			defer list.Close()

			// Downloads hit arbitrary image hosts; the version-specific
			// endpoint does not matter here, only the shared transport.
			api, err := buildAPI(c, "https://localhost")
			if err != nil {
				return err
			}
			sum, err := command.DownloadImages(c.Context, api, log, os.Stderr, list, c.Args().Get(1))
			if err != nil {
				return err
			}
			if sum.Failed > 0 {
				fmt.Printf("%d of %d downloads failed\n", sum.Failed, sum.Processed)
			}
			return nil
		},
	}
}

func uploadImageCommand() *cli.Command {
	return &cli.Command{
		Name:      "upload-image",
		Usage:     "upload a single image",
		ArgsUsage: "FILE_NAME FILE API_URL",
		Action: func(c *cli.Context) error {
			if err := requireArgs(c, "FILE_NAME", "FILE", "API_URL"); err != nil {
				return err
			}
			f, err := os.Open(c.Args().Get(1))
			if err != nil {
				return err
			}
			defer f.Close()

			api, err := newAuthAPI(c, c.Args().Get(2))
			if err != nil {
				return err
			}
			return command.UploadImage(c.Context, api, c.Args().Get(0), f)
		},
	}
}

func uploadImagesCommand() *cli.Command {
	return &cli.Command{
		Name:      "upload-images",
		Usage:     "upload images listed in a file",
		ArgsUsage: "LIST_FILE DOWNLOAD_DIR API_URL",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "skip-nonexistent",
				Value: true,
				Usage: "skip non-existent files instead of failing",
			},
		},
		Action: func(c *cli.Context) error {
			if err := requireArgs(c, "LIST_FILE", "DOWNLOAD_DIR", "API_URL"); err != nil {
				return err
			}
			list, err := os.Open(c.Args().Get(0))
			if err != nil {
				return err
			}
			defer list.Close()

			api, err := newAuthAPI(c, c.Args().Get(2))
			if err != nil {
				return err
			}
			sum, skipped, err := command.UploadImages(
				c.Context, api, log, os.Stderr, list, c.Args().Get(1),
				command.UploadImagesOptions{SkipMissing: c.Bool("skip-nonexistent")})
			if err != nil {
				return err
			}
			if len(skipped) > 0 {
				fmt.Println("Skipped (non-existent) files:")
				for _, name := range skipped {
					fmt.Println(name)
				}
			}
			if sum.Failed > 0 {
				fmt.Printf("%d of %d uploads failed\n", sum.Failed, sum.Processed)
			}
			return nil
		},
	}
}

func uploadPagesCommand() *cli.Command {
	return &cli.Command{
		Name:      "upload-pages",
		Usage:     "create pages from .txt files in a directory",
		ArgsUsage: "API_URL INPUT_DIRECTORY LIST_FILE",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "dictionary",
				Usage: "read the list file as a path-to-title dictionary",
			},
			&cli.BoolFlag{
				Name:  "extended-dictionary",
				Usage: "read dictionary values as objects with title and path keys",
			},
			&cli.StringFlag{
				Name:  "prefix",
				Usage: "prefix for page titles",
			},
			&cli.StringFlag{
				Name:  "summary",
				Value: "Mass upload",
				Usage: "edit summary",
			},
			&cli.IntFlag{
				Name:  "first-page",
				Usage: "page number to start with",
			},
			&cli.StringFlag{
				Name:  "mode",
				Value: command.ModeAppend,
				Usage: "append to or overwrite existing page text (append|overwrite)",
			},
			&cli.BoolFlag{
				Name:  "show-count",
				Usage: "display uploaded page count",
			},
		},
		Action: func(c *cli.Context) error {
			if err := requireArgs(c, "API_URL", "INPUT_DIRECTORY", "LIST_FILE"); err != nil {
				return err
			}
			mode := c.String("mode")
			if mode != command.ModeAppend && mode != command.ModeOverwrite {
				return fmt.Errorf("bad mode %q, expected append or overwrite", mode)
			}
			list, err := os.Open(c.Args().Get(2))
			if err != nil {
				return err
			}
			defer list.Close()

			api, err := newAuthAPI(c, c.Args().Get(0))
			if err != nil {
				return err
			}
			count, err := command.UploadPages(c.Context, api, log, os.Stderr, c.Args().Get(1), list, command.UploadPagesOptions{
				Dictionary:         c.Bool("dictionary"),
				ExtendedDictionary: c.Bool("extended-dictionary"),
				Prefix:             c.String("prefix"),
				Summary:            c.String("summary"),
				Mode:               mode,
				FirstPage:          c.Int("first-page"),
			})
			if err != nil {
				return err
			}
			if c.Bool("show-count") {
				fmt.Printf("Uploaded %d pages\n", count)
			}
			return nil
		},
	}
}

func voteCountCommand() *cli.Command {
	return &cli.Command{
		Name:      "votecount",
		Usage:     "compute edit counts and vote power for users from a list file",
		ArgsUsage: "API_URL USER_LIST_FILE",
		Flags: []cli.Flag{
			apiLimitFlag(),
			&cli.StringFlag{
				Name:  "namespacefile",
				Value: "namespaces.json",
				Usage: "JSON file with namespace weights",
			},
			&cli.TimestampFlag{
				Name:   "start",
				Layout: "2006-01-02",
				Usage:  "start date for counting edits",
			},
			&cli.TimestampFlag{
				Name:   "end",
				Layout: "2006-01-02",
				Usage:  "end date for counting edits",
			},
			&cli.StringFlag{
				Name:  "output-format",
				Value: "mediawiki",
				Usage: "output data format (txt|mediawiki|json)",
			},
			&cli.StringFlag{
				Name:  "redirect-regex-text",
				Value: command.DefaultRedirectRegex,
				Usage: "regular expression to detect redirect creation",
			},
		},
		Action: func(c *cli.Context) error {
			if err := requireArgs(c, "API_URL", "USER_LIST_FILE"); err != nil {
				return err
			}
			userFile, err := os.Open(c.Args().Get(1))
			if err != nil {
				return err
			}
			defer userFile.Close()
			users, err := command.ReadUserList(userFile)
			if err != nil {
				return err
			}

			weightsFile, err := os.Open(c.String("namespacefile"))
			if err != nil {
				return err
			}
			defer weightsFile.Close()
			table, err := weights.Load(weightsFile)
			if err != nil {
				return err
			}

			api, err := newAPI(c, c.Args().Get(0))
			if err != nil {
				return err
			}
			return command.VoteCount(c.Context, api, log, os.Stdout, users, command.VoteCountOptions{
				Weights:       table,
				Start:         c.Timestamp("start"),
				End:           c.Timestamp("end"),
				Format:        c.String("output-format"),
				RedirectRegex: c.String("redirect-regex-text"),
				Limit:         c.Int("api-limit"),
			})
		},
	}
}

func parseInt(s, name string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", name, s)
	}
	return n, nil
}
