package mwapi

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Redirect filter modes accepted by AllPages.
const (
	RedirectsAll  = "all"
	RedirectsOnly = "redirects"
	NonRedirects  = "nonredirects"
)

// listFetch adapts QueryList for a given module into a typed fetchFunc.
func listFetch[T any](api API, module string, params any) fetchFunc[T] {
	return func(ctx context.Context, cont Continuation) ([]T, Continuation, error) {
		page, err := api.QueryList(ctx, module, params, cont)
		if err != nil {
			return nil, nil, err
		}
		items := make([]T, 0, len(page.Items))
		for _, raw := range page.Items {
			var item T
			if err := json.Unmarshal(raw, &item); err != nil {
				return nil, nil, &MalformedResponseError{
					Message: "decoding " + module + " item",
					Err:     err,
				}
			}
			items = append(items, item)
		}
		return items, page.Next, nil
	}
}

type allPagesParams struct {
	List        string `url:"list"`
	Namespace   int    `url:"apnamespace"`
	Dir         string `url:"apdir"`
	FilterRedir string `url:"apfilterredir"`
	Limit       int    `url:"aplimit"`
	From        string `url:"apfrom,omitempty"`
}

// AllPages lists every page in a namespace in ascending title order.
// firstPage, when non-empty, resumes the listing from that title.
func AllPages(api API, namespace, limit int, firstPage, redirectFilter string) *Pager[PageRecord] {
	if redirectFilter == "" {
		redirectFilter = RedirectsAll
	}
	return newPager(listFetch[PageRecord](api, "allpages", allPagesParams{
		List:        "allpages",
		Namespace:   namespace,
		Dir:         "ascending",
		FilterRedir: redirectFilter,
		Limit:       limit,
		From:        firstPage,
	}))
}

type allImagesParams struct {
	List  string `url:"list"`
	Dir   string `url:"aidir"`
	Limit int    `url:"ailimit"`
}

// AllImages lists every image in the wiki in ascending name order.
func AllImages(api API, limit int) *Pager[ImageRecord] {
	return newPager(listFetch[ImageRecord](api, "allimages", allImagesParams{
		List:  "allimages",
		Dir:   "ascending",
		Limit: limit,
	}))
}

type categoryMembersParams struct {
	List      string `url:"list"`
	Title     string `url:"cmtitle"`
	Dir       string `url:"cmdir"`
	Limit     int    `url:"cmlimit"`
	Type      string `url:"cmtype,omitempty"`
	Namespace *int   `url:"cmnamespace,omitempty"`
}

// CategoryMembers lists pages in a category. memberType may be empty or
// one of "page", "subcat", "file".
func CategoryMembers(api API, category string, namespace *int, memberType string, limit int) *Pager[PageRecord] {
	return newPager(listFetch[PageRecord](api, "categorymembers", categoryMembersParams{
		List:      "categorymembers",
		Title:     category,
		Dir:       "ascending",
		Limit:     limit,
		Type:      memberType,
		Namespace: namespace,
	}))
}

type searchParams struct {
	List      string `url:"list"`
	Search    string `url:"srsearch"`
	Namespace int    `url:"srnamespace"`
	Limit     int    `url:"srlimit"`
	What      string `url:"srwhat"`
}

// SearchPages runs a full-text search within a namespace.
func SearchPages(api API, search string, namespace, limit int) *Pager[PageRecord] {
	return newPager(listFetch[PageRecord](api, "search", searchParams{
		List:      "search",
		Search:    search,
		Namespace: namespace,
		Limit:     limit,
		What:      "text",
	}))
}

type backlinksParams struct {
	List      string `url:"list"`
	Title     string `url:"bltitle"`
	Limit     int    `url:"bllimit"`
	Namespace *int   `url:"blnamespace,omitempty"`
}

// Backlinks lists pages that link to the given page.
func Backlinks(api API, title string, namespace *int, limit int) *Pager[PageRecord] {
	return newPager(listFetch[PageRecord](api, "backlinks", backlinksParams{
		List:      "backlinks",
		Title:     title,
		Limit:     limit,
		Namespace: namespace,
	}))
}

type userContribsParams struct {
	List      string `url:"list"`
	User      string `url:"ucuser"`
	Namespace int    `url:"ucnamespace"`
	Limit     int    `url:"uclimit"`
	Dir       string `url:"ucdir"`
	Start     string `url:"ucstart,omitempty"`
	End       string `url:"ucend,omitempty"`
}

// UserContributions lists the edits of one user in one namespace,
// oldest first, optionally bounded by a date range.
func UserContributions(api API, user string, namespace, limit int, start, end *time.Time) *Pager[Contribution] {
	params := userContribsParams{
		List:      "usercontribs",
		User:      strings.ReplaceAll(user, " ", "_"),
		Namespace: namespace,
		Limit:     limit,
		Dir:       "newer",
	}
	if start != nil {
		params.Start = strconv.FormatInt(start.Unix(), 10)
	}
	if end != nil {
		params.End = strconv.FormatInt(end.Unix(), 10)
	}
	return newPager(listFetch[Contribution](api, "usercontribs", params))
}

type deletedRevsParams struct {
	List      string `url:"list"`
	Namespace int    `url:"drnamespace"`
	Dir       string `url:"drdir"`
	Limit     int    `url:"drlimit"`
	Prop      string `url:"drprop"`
}

// DeletedRevisions lists deleted revisions in a namespace, flattened to
// one object per revision with the owning page title injected. Requires
// authentication and the deletedhistory right.
func DeletedRevisions(api API, namespace, limit int) *Pager[Revision] {
	params := deletedRevsParams{
		List:      "deletedrevs",
		Namespace: namespace,
		Dir:       "newer",
		Limit:     limit,
		Prop:      "revid|user|comment|content",
	}
	return newPager(func(ctx context.Context, cont Continuation) ([]Revision, Continuation, error) {
		page, err := api.QueryList(ctx, "deletedrevs", params, cont)
		if err != nil {
			return nil, nil, err
		}
		var revs []Revision
		for _, raw := range page.Items {
			var entry struct {
				Title     string     `json:"title"`
				Revisions []Revision `json:"revisions"`
			}
			if err := json.Unmarshal(raw, &entry); err != nil {
				return nil, nil, &MalformedResponseError{
					Message: "decoding deletedrevs item",
					Err:     err,
				}
			}
			for _, rev := range entry.Revisions {
				rev["title"] = entry.Title
				revs = append(revs, rev)
			}
		}
		return revs, page.Next, nil
	})
}

// PageImages resolves image URLs for the given page IDs, idsLimit IDs per
// API call. The sequence is driven by slicing the ID list, not by server
// continuation tokens.
func PageImages(api API, pageIDs []int64, idsLimit int) *Pager[ImageRecord] {
	offset := 0
	return newPager(func(ctx context.Context, _ Continuation) ([]ImageRecord, Continuation, error) {
		if offset >= len(pageIDs) {
			return nil, nil, nil
		}
		end := offset + idsLimit
		if end > len(pageIDs) {
			end = len(pageIDs)
		}
		ids := make([]string, 0, end-offset)
		for _, id := range pageIDs[offset:end] {
			ids = append(ids, strconv.FormatInt(id, 10))
		}
		offset = end

		page, err := api.QueryList(ctx, "pages", map[string]any{
			"action":  "query",
			"prop":    "imageinfo",
			"iiprop":  "url",
			"iilimit": 1,
			"pageids": ids,
		}, nil)
		if err != nil {
			return nil, nil, err
		}

		records := make([]ImageRecord, 0, len(page.Items))
		for _, raw := range page.Items {
			var entry struct {
				Title     string `json:"title"`
				ImageInfo []struct {
					URL string `json:"url"`
				} `json:"imageinfo"`
			}
			if err := json.Unmarshal(raw, &entry); err != nil {
				return nil, nil, &MalformedResponseError{
					Message: "decoding imageinfo item",
					Err:     err,
				}
			}
			if len(entry.ImageInfo) == 0 {
				continue
			}
			records = append(records, ImageRecord{Title: entry.Title, URL: entry.ImageInfo[0].URL})
		}

		var next Continuation
		if offset < len(pageIDs) {
			next = Continuation{"offset": offset}
		}
		return records, next, nil
	})
}
