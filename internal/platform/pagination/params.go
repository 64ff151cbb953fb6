// Package pagination parses the paging query parameters shared by the
// storefront collection endpoints.
package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultPageSize applies when a handler does not override it.
	DefaultPageSize = 20
	// DefaultMaxPageSize caps page_size when a handler does not override it.
	DefaultMaxPageSize = 100
)

// Params bundles the paging and sort values extracted from a request. The
// page token is opaque at this layer; repositories own its encoding.
type Params struct {
	PageSize  int
	PageToken string
	Sort      string
}

// Options control how Parse behaves for a given handler.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
	AllowedSorts    []string
}

var (
	ErrInvalidPageSize = errors.New("pagination: invalid page_size")
	ErrInvalidSort     = errors.New("pagination: invalid sort")
)

// FromRequest parses the supported query parameters from the supplied request.
func FromRequest(r *http.Request, opts Options) (Params, error) {
	if r == nil {
		return Params{}, errors.New("pagination: nil request")
	}
	return Parse(r.URL.Query(), opts)
}

// Parse consumes the provided query values and returns the normalised Params.
// Oversized page sizes clamp to the maximum; malformed values are rejected.
func Parse(values url.Values, opts Options) (Params, error) {
	if values == nil {
		values = url.Values{}
	}

	pageSize, err := parsePageSize(values.Get("page_size"), opts)
	if err != nil {
		return Params{}, err
	}

	params := Params{
		PageSize:  pageSize,
		PageToken: strings.TrimSpace(values.Get("page_token")),
	}

	sort, err := parseSort(values.Get("sort"), opts.AllowedSorts)
	if err != nil {
		return Params{}, err
	}
	params.Sort = sort

	return params, nil
}

func parsePageSize(raw string, opts Options) (int, error) {
	defaultSize := opts.DefaultPageSize
	if defaultSize <= 0 {
		defaultSize = DefaultPageSize
	}
	maxSize := opts.MaxPageSize
	if maxSize <= 0 {
		maxSize = DefaultMaxPageSize
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		if defaultSize > maxSize {
			return maxSize, nil
		}
		return defaultSize, nil
	}

	size, err := strconv.Atoi(raw)
	if err != nil || size <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPageSize, raw)
	}
	if size > maxSize {
		return maxSize, nil
	}
	return size, nil
}

func parseSort(raw string, allowed []string) (string, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return "", nil
	}
	for _, candidate := range allowed {
		if raw == strings.ToLower(strings.TrimSpace(candidate)) {
			return raw, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSort, raw)
}
