package mwapi

import (
	"encoding/json"
)

// Continuation is the opaque resume token returned by a paginated query.
// A nil map means the sequence is exhausted. Values may be strings or
// numbers; they are echoed back to the server verbatim.
type Continuation map[string]any

// PageRecord is one entry of a page-listing module.
type PageRecord struct {
	Title     string `json:"title"`
	Namespace int    `json:"ns"`
	PageID    int64  `json:"pageid"`
}

// ImageRecord is one entry of an image-listing module. Title keeps the
// "File:" namespace prefix; URL points at the hosted original.
type ImageRecord struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Revision is a deleted-revision object, passed through unmodified.
type Revision map[string]any

// Contribution is one entry of the usercontribs module. New is set when
// the edit created the page; the legacy API reports it as an empty-string
// marker, the modern one as a boolean.
type Contribution struct {
	Title   string
	Comment string
	New     bool
}

func (c *Contribution) UnmarshalJSON(data []byte) error {
	var aux struct {
		Title   string `json:"title"`
		Comment string `json:"comment"`
		New     any    `json:"new"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.Title = aux.Title
	c.Comment = aux.Comment
	c.New = aux.New != nil && aux.New != false
	return nil
}

// ListPage is one server page of a list module: its raw items in server
// order plus the token for the next page, nil when the listing is done.
type ListPage struct {
	Items []json.RawMessage
	Next  Continuation
}

type apiErrorBody struct {
	Code string `json:"code"`
	Info string `json:"info"`
	Text string `json:"text"`
}

func (b apiErrorBody) message() string {
	if b.Info != "" {
		return b.Info
	}
	return b.Text
}

// envelope holds the protocol-level fields of an API response. Both
// continuation dialects are decoded; each variant reads its own.
type envelope struct {
	Error         *apiErrorBody           `json:"error"`
	Errors        []apiErrorBody          `json:"errors"`
	Continue      Continuation            `json:"continue"`
	QueryContinue map[string]Continuation `json:"query-continue"`
}

type response struct {
	statusCode int
	raw        json.RawMessage
	envelope
}

// into decodes the raw body into out.
func (r *response) into(out any) error {
	if err := json.Unmarshal(r.raw, out); err != nil {
		return &MalformedResponseError{Message: "decoding response body", Err: err}
	}
	return nil
}

// apiError returns the classified error carried in the envelope, or nil.
func (r *response) apiError() error {
	body := r.errorBody()
	if body == nil {
		return nil
	}
	return classifyError(body.Code, body.message(), r.statusCode)
}

func (r *response) errorBody() *apiErrorBody {
	if r.Error != nil {
		return r.Error
	}
	if len(r.Errors) > 0 {
		return &r.Errors[0]
	}
	return nil
}

func (r *response) errorCode() string {
	if body := r.errorBody(); body != nil {
		return body.Code
	}
	return ""
}
