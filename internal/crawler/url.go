package crawler

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/JakeFAU/country-directory/internal/country"
)

// BuildURL joins the directory base URL with the criterion's endpoint,
// producing base/<field-path>/<escaped value>.
func BuildURL(base string, criterion country.Criterion) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("base url %q must be absolute", base)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawQuery = ""
	return u.String() + "/" + criterion.Field.PathSegment() + "/" + url.PathEscape(criterion.Value), nil
}
