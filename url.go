// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package perch

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

type Stringifiable interface {
	String() string
}

func parseAndNormalizeBaseURL(homeserverURL string) (*url.URL, error) {
	hsURL, err := url.Parse(homeserverURL)
	if err != nil {
		return nil, err
	}
	if hsURL.Scheme == "" {
		hsURL.Scheme = "https"
		fixedURL := hsURL.String()
		hsURL, err = url.Parse(fixedURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse fixed URL '%s': %v", fixedURL, err)
		}
	}
	hsURL.RawPath = hsURL.EscapedPath()
	return hsURL, nil
}

// BuildURL builds a URL with the given path parts appended to the base URL,
// escaping each part individually.
func BuildURL(baseURL *url.URL, path ...any) *url.URL {
	createdURL := *baseURL
	rawParts := make([]string, len(path)+1)
	rawParts[0] = strings.TrimSuffix(createdURL.RawPath, "/")
	parts := make([]string, len(path)+1)
	parts[0] = strings.TrimSuffix(createdURL.Path, "/")
	for i, part := range path {
		switch casted := part.(type) {
		case string:
			parts[i+1] = casted
		case int:
			parts[i+1] = strconv.Itoa(casted)
		case Stringifiable:
			parts[i+1] = casted.String()
		default:
			parts[i+1] = fmt.Sprint(casted)
		}
		rawParts[i+1] = url.PathEscape(parts[i+1])
	}
	createdURL.Path = strings.Join(parts, "/")
	createdURL.RawPath = strings.Join(rawParts, "/")
	return &createdURL
}

type ClientURLPath = []any

// BuildClientURL builds a URL under the client API prefix of the homeserver.
func (cli *Client) BuildClientURL(urlPath ...any) string {
	return cli.BuildURLWithQuery(urlPath, nil)
}

// BuildURLWithQuery builds a client API URL with query parameters. The access
// token is always passed in a header, never here.
func (cli *Client) BuildURLWithQuery(urlPath ClientURLPath, urlQuery map[string]string) string {
	hsURL := *BuildURL(cli.HomeserverURL, append(ClientURLPath{"_matrix", "client", "api", "v1"}, urlPath...)...)
	if urlQuery != nil {
		query := hsURL.Query()
		for k, v := range urlQuery {
			query.Set(k, v)
		}
		hsURL.RawQuery = query.Encode()
	}
	return hsURL.String()
}

// BuildMediaURL builds a URL under the media repository prefix.
func (cli *Client) BuildMediaURL(urlPath ClientURLPath, urlQuery map[string]string) string {
	hsURL := *BuildURL(cli.HomeserverURL, append(ClientURLPath{"_matrix", "media", "v1"}, urlPath...)...)
	if urlQuery != nil {
		query := hsURL.Query()
		for k, v := range urlQuery {
			query.Set(k, v)
		}
		hsURL.RawQuery = query.Encode()
	}
	return hsURL.String()
}
