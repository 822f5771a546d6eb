package mwapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// API is the capability set shared by the supported MediaWiki versions.
// Operations a variant cannot perform return a NotSupportedError.
type API interface {
	// Version reports the protocol variant, e.g. "1.31".
	Version() string

	// Login performs the version-appropriate login handshake.
	Login(ctx context.Context, username, password string) error

	// NamespaceList returns the IDs of all non-virtual namespaces,
	// in ascending order.
	NamespaceList(ctx context.Context) ([]int, error)

	// QueryList fetches one page of the given list module and the token
	// for the next page (nil when the listing is complete). The caller
	// drives the continuation, normally through a Pager.
	QueryList(ctx context.Context, module string, params any, cont Continuation) (*ListPage, error)

	// PageContent returns the current wikitext of a page, or an
	// ItemNotFoundError if it does not exist.
	PageContent(ctx context.Context, title string) (string, error)

	// EditPage creates or overwrites a page. Requires authentication.
	EditPage(ctx context.Context, title, text, summary string) error

	// DeletePage deletes a page. Requires authentication and rights.
	DeletePage(ctx context.Context, title, reason string) error

	// UploadFile uploads binary content under the given title.
	UploadFile(ctx context.Context, filename string, r io.Reader, mimeType string, ignoreWarnings bool) error

	// DownloadFile streams the (typically CDN-hosted) URL into w and
	// returns the number of bytes written.
	DownloadFile(ctx context.Context, fileURL string, w io.Writer) (int64, error)
}

// New returns a client for the requested MediaWiki version. siteURL is
// the wiki root; api.php and index.php paths are derived from it.
func New(version, siteURL string, opts ...Option) (API, error) {
	switch version {
	case "1.31":
		return NewV131(siteURL, opts...)
	case "1.19":
		return NewV119(siteURL, opts...)
	default:
		return nil, &NotSupportedError{Version: version, Operation: "client"}
	}
}

type Option func(*core)

func WithUserAgent(ua string) Option {
	return func(c *core) {
		if ua != "" {
			c.ua = ua
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *core) {
		if hc != nil {
			c.hc = hc
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *core) {
		if d > 0 {
			c.hc.Timeout = d
		}
	}
}

// WithThrottle sets the minimum delay between outbound requests.
func WithThrottle(interval time.Duration) Option {
	return func(c *core) {
		c.throttle = NewThrottle(interval)
	}
}

// core carries the HTTP plumbing shared by both protocol variants.
type core struct {
	apiURL   *url.URL
	indexURL *url.URL
	hc       *http.Client
	ua       string
	throttle *Throttle

	// defaults are merged into every api.php request, e.g. formatversion.
	defaults url.Values
}

func newCore(siteURL string) (*core, error) {
	u, err := url.Parse(strings.TrimSuffix(siteURL, "/"))
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid site URL (expect full URL): %q", siteURL)
	}

	apiURL := *u
	apiURL.Path = u.Path + "/api.php"
	indexURL := *u
	indexURL.Path = u.Path + "/index.php"

	jar, _ := cookiejar.New(nil)
	return &core{
		apiURL:   &apiURL,
		indexURL: &indexURL,
		hc: &http.Client{
			Jar:     jar,
			Timeout: 30 * time.Second,
		},
		ua:       "wikitool-go/0.1",
		defaults: url.Values{},
	}, nil
}

func (c *core) applyOptions(opts []Option) {
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.hc.Jar == nil {
		jar, _ := cookiejar.New(nil)
		c.hc.Jar = jar
	}
}

func (c *core) get(ctx context.Context, p any, cont Continuation) (*response, error) {
	values, err := c.requestValues(p, cont)
	if err != nil {
		return nil, err
	}
	u := *c.apiURL
	u.RawQuery = values.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *core) postForm(ctx context.Context, p any) (*response, error) {
	values, err := c.requestValues(p, nil)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.apiURL.String(), strings.NewReader(values.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

// postMultipart streams the body through a pipe so large files never sit
// in memory as a whole.
func (c *core) postMultipart(ctx context.Context, fields url.Values, fileField, filename string, file io.Reader) (*response, error) {
	pr, pw := io.Pipe()
	w := multipart.NewWriter(pw)

	go func() {
		err := func() error {
			for k, vs := range fields {
				if len(vs) == 0 {
					continue
				}
				if err := w.WriteField(k, vs[0]); err != nil {
					return err
				}
			}
			fw, err := w.CreateFormFile(fileField, filename)
			if err != nil {
				return err
			}
			if _, err := io.Copy(fw, file); err != nil {
				return err
			}
			return w.Close()
		}()
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL.String(), pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.do(req)
}

func (c *core) requestValues(p any, cont Continuation) (url.Values, error) {
	values, err := normalizeParams(p)
	if err != nil {
		return nil, err
	}
	for k, vs := range c.defaults {
		if values.Get(k) == "" && len(vs) > 0 {
			values.Set(k, vs[0])
		}
	}
	applyContinuation(values, cont)
	return values, nil
}

func (c *core) do(req *http.Request) (*response, error) {
	req.Header.Set("User-Agent", c.ua)
	c.throttle.Wait()

	res, err := c.hc.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: req.URL.String(), Err: err}
	}
	defer res.Body.Close()

	const maxBody = 32 << 20
	body, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return nil, &NetworkError{URL: req.URL.String(), Err: err}
	}

	if res.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{Code: "http-429", Message: "server throttled the request"}
	}
	if res.StatusCode != http.StatusOK {
		return nil, &APIError{
			Code:       "http-status",
			Message:    fmt.Sprintf("status code is %d", res.StatusCode),
			HTTPStatus: res.StatusCode,
		}
	}

	resp := &response{
		statusCode: res.StatusCode,
		raw:        json.RawMessage(body),
	}

	// Continuation values may be numbers; keep them lossless.
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&resp.envelope); err != nil {
		return nil, &MalformedResponseError{Message: "decoding API envelope", Err: err}
	}
	return resp, nil
}

// pageContent serves both variants: raw wikitext comes from index.php,
// not the API endpoint.
func (c *core) pageContent(ctx context.Context, title string) (string, error) {
	u := *c.indexURL
	q := url.Values{}
	q.Set("action", "raw")
	q.Set("title", title)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", c.ua)
	c.throttle.Wait()

	res, err := c.hc.Do(req)
	if err != nil {
		return "", &NetworkError{URL: u.String(), Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return "", &ItemNotFoundError{Title: title}
	}
	if res.StatusCode != http.StatusOK {
		return "", &APIError{
			Code:       "http-status",
			Message:    fmt.Sprintf("status code is %d", res.StatusCode),
			HTTPStatus: res.StatusCode,
		}
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", &NetworkError{URL: u.String(), Err: err}
	}
	return string(body), nil
}

// downloadFile streams fileURL into w. Image originals usually live on a
// separate host, so the URL is taken as-is.
func (c *core) downloadFile(ctx context.Context, fileURL string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", c.ua)
	c.throttle.Wait()

	res, err := c.hc.Do(req)
	if err != nil {
		return 0, &NetworkError{URL: fileURL, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return 0, &ItemNotFoundError{Title: fileURL}
	}
	if res.StatusCode != http.StatusOK {
		return 0, &NetworkError{
			URL: fileURL,
			Err: fmt.Errorf("status code is %d", res.StatusCode),
		}
	}

	n, err := io.Copy(w, res.Body)
	if err != nil {
		return n, &NetworkError{URL: fileURL, Err: err}
	}
	return n, nil
}

// extractListItems pulls query.<module> out of a response body as raw
// items, preserving server order.
func extractListItems(resp *response, module string) ([]json.RawMessage, error) {
	var out struct {
		Query map[string]json.RawMessage `json:"query"`
	}
	if err := resp.into(&out); err != nil {
		return nil, err
	}
	rawItems, ok := out.Query[module]
	if !ok {
		// An empty result set may omit the module key entirely.
		if len(out.Query) == 0 {
			return nil, nil
		}
		return nil, &MalformedResponseError{
			Message: fmt.Sprintf("missing query.%s in response", module),
		}
	}
	var items []json.RawMessage
	if err := json.Unmarshal(rawItems, &items); err != nil {
		return nil, &MalformedResponseError{
			Message: fmt.Sprintf("query.%s is not a list", module),
			Err:     err,
		}
	}
	return items, nil
}
