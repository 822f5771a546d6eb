package mwapi

import (
	"context"
	"io"
	"sort"
	"strings"

	"golang.org/x/sync/singleflight"
)

// V131 speaks the modern Action API protocol: meta=tokens handshakes,
// the flat "continue" object and formatversion=2 responses.
type V131 struct {
	*core

	tokens map[string]string
	sf     singleflight.Group
}

func NewV131(siteURL string, opts ...Option) (*V131, error) {
	c, err := newCore(siteURL)
	if err != nil {
		return nil, err
	}
	c.defaults.Set("formatversion", "2")
	c.applyOptions(opts)
	return &V131{
		core:   c,
		tokens: map[string]string{},
	}, nil
}

func (v *V131) Version() string { return "1.31" }

func (v *V131) token(ctx context.Context, tokenType string) (string, error) {
	if tok := v.tokens[tokenType]; tok != "" {
		return tok, nil
	}

	// Guard against duplicate fetches of the same token type.
	val, err, _ := v.sf.Do("token:"+tokenType, func() (any, error) {
		resp, err := v.postForm(ctx, map[string]any{
			"action": "query",
			"meta":   "tokens",
			"type":   tokenType,
		})
		if err != nil {
			return "", err
		}
		if apiErr := resp.apiError(); apiErr != nil {
			return "", apiErr
		}

		var out struct {
			Query struct {
				Tokens map[string]string `json:"tokens"`
			} `json:"query"`
		}
		if err := resp.into(&out); err != nil {
			return "", err
		}
		tok := out.Query.Tokens[tokenType+"token"]
		if tok == "" {
			return "", &MalformedResponseError{Message: "missing " + tokenType + " token"}
		}
		v.tokens[tokenType] = tok
		return tok, nil
	})
	if err != nil {
		return "", err
	}
	return val.(string), nil
}

func (v *V131) invalidateToken(tokenType string) {
	delete(v.tokens, tokenType)
}

// postWithCSRF posts a mutating action with the cached csrf token. On a
// token-expiry error it fetches a fresh token and retries exactly once.
func (v *V131) postWithCSRF(ctx context.Context, params map[string]any) (*response, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			v.invalidateToken("csrf")
		}
		tok, err := v.token(ctx, "csrf")
		if err != nil {
			return nil, err
		}
		params["token"] = tok

		resp, err := v.postForm(ctx, params)
		if err != nil {
			return nil, err
		}
		if code := resp.errorCode(); isTokenErrorCode(code) {
			lastErr = resp.apiError()
			continue
		}
		if apiErr := resp.apiError(); apiErr != nil {
			return nil, apiErr
		}
		return resp, nil
	}
	return nil, lastErr
}

func (v *V131) Login(ctx context.Context, username, password string) error {
	// Login tokens are session-sensitive; never reuse a cached one.
	v.invalidateToken("login")
	tok, err := v.token(ctx, "login")
	if err != nil {
		return err
	}

	resp, err := v.postForm(ctx, map[string]any{
		"action":     "login",
		"lgname":     username,
		"lgpassword": password,
		"lgtoken":    tok,
	})
	if err != nil {
		return err
	}
	if apiErr := resp.apiError(); apiErr != nil {
		return apiErr
	}

	var out struct {
		Login struct {
			Result string `json:"result"`
			Reason string `json:"reason"`
		} `json:"login"`
	}
	if err := resp.into(&out); err != nil {
		return err
	}
	if !strings.EqualFold(out.Login.Result, "success") {
		return &AuthenticationError{Result: out.Login.Result, Reason: out.Login.Reason}
	}

	// Session changed; cached tokens are stale.
	v.tokens = map[string]string{}
	return nil
}

func (v *V131) NamespaceList(ctx context.Context) ([]int, error) {
	resp, err := v.get(ctx, map[string]any{
		"action": "query",
		"meta":   "siteinfo",
		"siprop": "namespaces",
	}, nil)
	if err != nil {
		return nil, err
	}
	if apiErr := resp.apiError(); apiErr != nil {
		return nil, apiErr
	}
	return decodeNamespaces(resp)
}

func (v *V131) QueryList(ctx context.Context, module string, params any, cont Continuation) (*ListPage, error) {
	resp, err := v.get(ctx, params, cont)
	if err != nil {
		return nil, err
	}
	if apiErr := resp.apiError(); apiErr != nil {
		return nil, apiErr
	}
	items, err := extractListItems(resp, module)
	if err != nil {
		return nil, err
	}
	return &ListPage{Items: items, Next: resp.Continue}, nil
}

func (v *V131) PageContent(ctx context.Context, title string) (string, error) {
	return v.pageContent(ctx, title)
}

func (v *V131) EditPage(ctx context.Context, title, text, summary string) error {
	params := map[string]any{
		"action": "edit",
		"title":  title,
		"text":   text,
		"bot":    true,
	}
	if summary != "" {
		params["summary"] = summary
	}
	_, err := v.postWithCSRF(ctx, params)
	return err
}

func (v *V131) DeletePage(ctx context.Context, title, reason string) error {
	params := map[string]any{
		"action": "delete",
		"title":  title,
	}
	if reason != "" {
		params["reason"] = reason
	}
	_, err := v.postWithCSRF(ctx, params)
	return err
}

func (v *V131) UploadFile(ctx context.Context, filename string, r io.Reader, mimeType string, ignoreWarnings bool) error {
	tok, err := v.token(ctx, "csrf")
	if err != nil {
		return err
	}

	fields, err := normalizeParams(map[string]any{
		"action":   "upload",
		"filename": filename,
		"token":    tok,
		"async":    true,
	})
	if err != nil {
		return err
	}
	if ignoreWarnings {
		fields.Set("ignorewarnings", "1")
	}

	resp, err := v.postMultipart(ctx, fields, "file", filename, r)
	if err != nil {
		return err
	}
	if body := resp.errorBody(); body != nil {
		return &UploadError{Code: body.Code, Message: body.message()}
	}

	var out struct {
		Upload struct {
			Result   string         `json:"result"`
			Warnings map[string]any `json:"warnings"`
		} `json:"upload"`
	}
	if err := resp.into(&out); err != nil {
		return err
	}
	if strings.EqualFold(out.Upload.Result, "warning") {
		return &UploadError{
			Code:    firstWarningKey(out.Upload.Warnings),
			Message: "upload rejected with warnings",
		}
	}
	return nil
}

func (v *V131) DownloadFile(ctx context.Context, fileURL string, w io.Writer) (int64, error) {
	return v.downloadFile(ctx, fileURL, w)
}

func firstWarningKey(warnings map[string]any) string {
	keys := make([]string, 0, len(warnings))
	for k := range warnings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return "unknown-warning"
	}
	return keys[0]
}

// decodeNamespaces handles both response formats: namespaces arrive as an
// object keyed by ID, with the ID repeated inside each entry.
func decodeNamespaces(resp *response) ([]int, error) {
	var out struct {
		Query struct {
			Namespaces map[string]struct {
				ID int `json:"id"`
			} `json:"namespaces"`
		} `json:"query"`
	}
	if err := resp.into(&out); err != nil {
		return nil, err
	}
	if out.Query.Namespaces == nil {
		return nil, &MalformedResponseError{Message: "missing query.namespaces in response"}
	}

	ids := make([]int, 0, len(out.Query.Namespaces))
	for _, ns := range out.Query.Namespaces {
		if ns.ID >= 0 {
			ids = append(ids, ns.ID)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

var _ API = (*V131)(nil)
