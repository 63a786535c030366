package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

const (
	// DefaultPageSize defines the fallback number of items returned when the client omits pageSize.
	DefaultPageSize = 20
	// DefaultMaxPageSize caps the supported pageSize to prevent unbounded queries.
	DefaultMaxPageSize = 100
)

// Params bundles offset pagination and sort values extracted from a request.
type Params struct {
	Page     int
	PageSize int
	Sort     string
}

// Options control how Parse and Normalize behave for a given handler layer.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
	AllowedSorts    []string
	DefaultSort     string
}

var (
	ErrInvalidPage     = errors.New("pagination: invalid page")
	ErrInvalidPageSize = errors.New("pagination: invalid pageSize")
	ErrInvalidSort     = errors.New("pagination: invalid sort")
)

// FromRequest parses the supported query parameters from the supplied request.
func FromRequest(r *http.Request, opts Options) (Params, error) {
	if r == nil {
		return Params{}, errors.New("pagination: nil request")
	}
	return Parse(r.URL.Query(), opts)
}

// Parse consumes page, pageSize and sort from the query values and returns normalised Params.
func Parse(values url.Values, opts Options) (Params, error) {
	if values == nil {
		values = url.Values{}
	}
	page, err := parseInt(values.Get("page"), ErrInvalidPage)
	if err != nil {
		return Params{}, err
	}
	pageSize, err := parseInt(values.Get("pageSize"), ErrInvalidPageSize)
	if err != nil {
		return Params{}, err
	}
	return Normalize(Params{Page: page, PageSize: pageSize, Sort: values.Get("sort")}, opts)
}

// Normalize applies defaults and limits. Zero values mean "not supplied". A pageSize above the
// maximum is clamped rather than rejected.
func Normalize(params Params, opts Options) (Params, error) {
	maxPageSize := opts.MaxPageSize
	if maxPageSize <= 0 {
		maxPageSize = DefaultMaxPageSize
	}
	defaultPageSize := opts.DefaultPageSize
	if defaultPageSize <= 0 {
		defaultPageSize = DefaultPageSize
	}
	defaultPageSize = min(defaultPageSize, maxPageSize)

	switch {
	case params.Page < 0:
		return Params{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidPage)
	case params.Page == 0:
		params.Page = 1
	}

	switch {
	case params.PageSize < 0:
		return Params{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidPageSize)
	case params.PageSize == 0:
		params.PageSize = defaultPageSize
	case params.PageSize > maxPageSize:
		params.PageSize = maxPageSize
	}

	params.Sort = strings.TrimSpace(params.Sort)
	if params.Sort == "" {
		params.Sort = opts.DefaultSort
	}
	if params.Sort != "" && len(opts.AllowedSorts) > 0 && !slices.Contains(opts.AllowedSorts, params.Sort) {
		return Params{}, fmt.Errorf("%w: %q is not supported", ErrInvalidSort, params.Sort)
	}
	return params, nil
}

// Offset returns the number of items skipped before the page.
func (p Params) Offset() int {
	if p.Page <= 1 || p.PageSize <= 0 {
		return 0
	}
	return (p.Page - 1) * p.PageSize
}

func parseInt(raw string, sentinel error) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: must be an integer", sentinel)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", sentinel)
	}
	return value, nil
}
