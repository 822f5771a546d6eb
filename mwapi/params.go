package mwapi

import (
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/google/go-querystring/query"
)

// normalizeParams converts the supported parameter shapes into url.Values.
// Struct parameters are encoded through go-querystring tags; repeated
// values are joined with "|" as MediaWiki expects.
func normalizeParams(p any) (url.Values, error) {
	values := url.Values{}

	switch v := p.(type) {
	case nil:
		// nothing
	case url.Values:
		for k, vs := range v {
			if len(vs) == 0 {
				continue
			}
			values.Set(k, strings.Join(vs, "|"))
		}
	case map[string]string:
		for k, val := range v {
			values.Set(k, val)
		}
	case map[string]any:
		for k, val := range v {
			if err := setAny(values, k, val); err != nil {
				return nil, err
			}
		}
	default:
		rv := reflect.ValueOf(p)
		if rv.Kind() == reflect.Pointer {
			if rv.IsNil() {
				break
			}
			rv = rv.Elem()
		}
		if rv.Kind() != reflect.Struct {
			return nil, fmt.Errorf("unsupported params type: %T", p)
		}
		structValues, err := query.Values(p)
		if err != nil {
			return nil, err
		}
		for k, vs := range structValues {
			if len(vs) == 0 {
				continue
			}
			values.Set(k, strings.Join(vs, "|"))
		}
	}

	setDefaultIfMissing(values, "action", "query")
	setDefaultIfMissing(values, "format", "json")

	return values, nil
}

func setDefaultIfMissing(v url.Values, key, value string) {
	if v.Get(key) == "" {
		v.Set(key, value)
	}
}

func setAny(values url.Values, key string, val any) error {
	switch x := val.(type) {
	case nil:
		return nil
	case string:
		values.Set(key, x)
	case bool:
		if x {
			values.Set(key, "1")
		}
	case int:
		values.Set(key, strconv.Itoa(x))
	case int64:
		values.Set(key, strconv.FormatInt(x, 10))
	case float64:
		values.Set(key, strconv.FormatFloat(x, 'f', -1, 64))
	case []string:
		if len(x) > 0 {
			values.Set(key, strings.Join(x, "|"))
		}
	case fmt.Stringer:
		values.Set(key, x.String())
	default:
		values.Set(key, fmt.Sprint(val))
	}
	return nil
}

// applyContinuation overlays a continuation token onto request values.
func applyContinuation(values url.Values, cont Continuation) {
	for k, v := range cont {
		values.Set(k, fmt.Sprint(v))
	}
}
