// Package permalink turns internal result locations into public URLs served
// by the service-results frontend.
package permalink

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrUnrecognizedURL is returned for hrefs whose scheme cannot be made public.
var ErrUnrecognizedURL = errors.New("unrecognized URL")

// LinkTypeS3 asks for object storage links to be returned as s3:// URLs.
const LinkTypeS3 = "s3"

// Public returns the public form of href. Object storage URLs become
// <urlRoot>/service-results/<bucket>/<key> unless linkType is "s3"; http(s)
// URLs are already public and come back unchanged. mimeType is currently
// unused and kept so callers can pass a link's type through.
func Public(href, urlRoot, mimeType, linkType string) (string, error) {
	_ = mimeType

	u, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnrecognizedURL, href)
	}

	switch strings.ToLower(u.Scheme) {
	case "s3":
		if strings.ToLower(linkType) == LinkTypeS3 {
			return href, nil
		}
		if u.Host == "" {
			return "", fmt.Errorf("%w: missing bucket in %s", ErrUnrecognizedURL, href)
		}
		return strings.TrimRight(urlRoot, "/") + "/service-results/" + u.Host + u.EscapedPath(), nil
	case "http", "https":
		return href, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnrecognizedURL, href)
	}
}
