package mwapi

import (
	"context"
	"io"
	"strings"
)

// V119 speaks the legacy protocol: two-phase NeedToken login, per-page
// intoken edit/delete tokens and the nested "query-continue" object.
// Several modules did not exist yet; those return NotSupportedError.
type V119 struct {
	*core

	editTokens   map[string]string
	deleteTokens map[string]string
}

func NewV119(siteURL string, opts ...Option) (*V119, error) {
	c, err := newCore(siteURL)
	if err != nil {
		return nil, err
	}
	c.applyOptions(opts)
	return &V119{
		core:         c,
		editTokens:   map[string]string{},
		deleteTokens: map[string]string{},
	}, nil
}

func (v *V119) Version() string { return "1.19" }

// Login performs the pre-1.27 handshake: the first login POST returns
// NeedToken plus the token, the second one submits it.
func (v *V119) Login(ctx context.Context, username, password string) error {
	resp, err := v.postForm(ctx, map[string]any{
		"action":     "login",
		"lgname":     username,
		"lgpassword": password,
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
			Token  string `json:"token"`
			Reason string `json:"reason"`
		} `json:"login"`
	}
	if err := resp.into(&out); err != nil {
		return err
	}
	if strings.EqualFold(out.Login.Result, "success") {
		return nil
	}
	if !strings.EqualFold(out.Login.Result, "needtoken") {
		return &AuthenticationError{Result: out.Login.Result, Reason: out.Login.Reason}
	}

	resp, err = v.postForm(ctx, map[string]any{
		"action":     "login",
		"lgname":     username,
		"lgpassword": password,
		"lgtoken":    out.Login.Token,
	})
	if err != nil {
		return err
	}
	if apiErr := resp.apiError(); apiErr != nil {
		return apiErr
	}
	if err := resp.into(&out); err != nil {
		return err
	}
	if !strings.EqualFold(out.Login.Result, "success") {
		return &AuthenticationError{Result: out.Login.Result, Reason: out.Login.Reason}
	}
	return nil
}

func (v *V119) NamespaceList(ctx context.Context) ([]int, error) {
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

// unsupportedModules lists query modules absent or unusable on 1.19.
var unsupportedModules119 = map[string]string{
	"search":          "text search",
	"categorymembers": "category member listing",
	"pages":           "page image lookup",
}

func (v *V119) QueryList(ctx context.Context, module string, params any, cont Continuation) (*ListPage, error) {
	if op, ok := unsupportedModules119[module]; ok {
		return nil, &NotSupportedError{Version: v.Version(), Operation: op}
	}

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
	// Legacy continuation nests the token under the module name.
	return &ListPage{Items: items, Next: resp.QueryContinue[module]}, nil
}

func (v *V119) PageContent(ctx context.Context, title string) (string, error) {
	return v.pageContent(ctx, title)
}

// pageToken fetches a per-page mutation token via prop=info intoken,
// the pre-1.24 token scheme.
func (v *V119) pageToken(ctx context.Context, tokenType, title string) (string, error) {
	resp, err := v.postForm(ctx, map[string]any{
		"action":  "query",
		"prop":    "info",
		"titles":  title,
		"intoken": tokenType,
	})
	if err != nil {
		return "", err
	}
	if apiErr := resp.apiError(); apiErr != nil {
		return "", apiErr
	}

	var out struct {
		Query struct {
			Pages map[string]map[string]any `json:"pages"`
		} `json:"query"`
	}
	if err := resp.into(&out); err != nil {
		return "", err
	}
	for _, page := range out.Query.Pages {
		if tok, ok := page[tokenType+"token"].(string); ok && tok != "" {
			return tok, nil
		}
	}
	return "", &MalformedResponseError{Message: "missing " + tokenType + " token for " + title}
}

func (v *V119) EditPage(ctx context.Context, title, text, summary string) error {
	params := map[string]any{
		"action": "edit",
		"title":  title,
		"text":   text,
	}
	if summary != "" {
		params["summary"] = summary
	}
	return v.postWithPageToken(ctx, "edit", title, v.editTokens, params)
}

func (v *V119) DeletePage(ctx context.Context, title, reason string) error {
	params := map[string]any{
		"action": "delete",
		"title":  title,
	}
	if reason != "" {
		params["reason"] = reason
	}
	return v.postWithPageToken(ctx, "delete", title, v.deleteTokens, params)
}

// postWithPageToken posts a mutating action with a cached per-page token,
// refreshing it and retrying exactly once on a token error.
func (v *V119) postWithPageToken(ctx context.Context, tokenType, title string, cache map[string]string, params map[string]any) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		tok := cache[title]
		if tok == "" || attempt > 0 {
			fresh, err := v.pageToken(ctx, tokenType, title)
			if err != nil {
				return err
			}
			cache[title] = fresh
			tok = fresh
		}
		params["token"] = tok

		resp, err := v.postForm(ctx, params)
		if err != nil {
			return err
		}
		if code := resp.errorCode(); isTokenErrorCode(code) {
			lastErr = resp.apiError()
			continue
		}
		return resp.apiError()
	}
	return lastErr
}

func (v *V119) UploadFile(ctx context.Context, filename string, r io.Reader, mimeType string, ignoreWarnings bool) error {
	return &NotSupportedError{Version: v.Version(), Operation: "file upload"}
}

func (v *V119) DownloadFile(ctx context.Context, fileURL string, w io.Writer) (int64, error) {
	return v.downloadFile(ctx, fileURL, w)
}

var _ API = (*V119)(nil)
