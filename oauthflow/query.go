package oauthflow

import (
	"errors"
	"net/url"
	"strings"
)

type initQuery struct {
	method      Method
	redirectURL string
}

// parseInitQuery validates the query of the init endpoint. redirectUrl must
// be a path on the calling origin: it starts with "/" and is not an
// absolute URL. Protocol-relative paths ("//host") are rejected too since
// browsers resolve them against another host.
func parseInitQuery(q url.Values) (initQuery, error) {
	var problems []string

	method := Method(q.Get("method"))
	if !method.valid() {
		problems = append(problems, `method must be "login" or "register"`)
	}

	redirect := q.Get("redirectUrl")
	if !isRelativePath(redirect) {
		problems = append(problems, "redirectUrl must be a relative path")
	}

	if len(problems) > 0 {
		return initQuery{}, errors.New(strings.Join(problems, "; "))
	}
	return initQuery{method: method, redirectURL: redirect}, nil
}

func isRelativePath(v string) bool {
	if !strings.HasPrefix(v, "/") || strings.HasPrefix(v, "//") || strings.HasPrefix(v, `/\`) {
		return false
	}
	u, err := url.Parse(v)
	if err != nil {
		return false
	}
	return !u.IsAbs() && u.Host == ""
}
