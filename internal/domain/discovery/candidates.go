package discovery

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"medialink-client-go/internal/platform/errors"
)

// InputClass describes how the raw address was interpreted.
type InputClass string

const (
	ClassExplicitScheme InputClass = "explicit_scheme"
	ClassIPv4Literal    InputClass = "ipv4_literal"
	ClassHostname       InputClass = "hostname"
)

// Candidates is the ordered probe plan for one raw address.
type Candidates struct {
	// URLs are tried strictly left to right. Each is scheme+host+port with
	// no path and no trailing slash.
	URLs  []string
	Class InputClass
}

var ipv4Pattern = regexp.MustCompile(`^\d+\.\d+\.\d+\.\d+`)

// Normalize turns free-form user input into an ordered candidate list.
//
// Scheme policy:
//   - no scheme + IPv4 literal: plain http only, LAN boxes rarely carry
//     certificates;
//   - no scheme + hostname: https first, http fallback;
//   - explicit https + hostname: https first, http fallback for
//     self-signed/plain setups;
//   - explicit https + IPv4 literal: https only, the user chose it;
//   - explicit http + hostname: upgraded to https with no http retry, so a
//     typed-out http:// does not silently downgrade a domain;
//   - explicit http + IPv4 literal: respected as-is.
func Normalize(raw string) (Candidates, error) {
	input := strings.TrimSpace(raw)
	input = strings.TrimSuffix(input, "/")
	if input == "" {
		return Candidates{}, errors.New(errors.KindConfig, "discovery.normalize", "empty server address")
	}

	explicitScheme := ""
	rest := input
	switch {
	case strings.HasPrefix(input, "https://"):
		explicitScheme = "https"
		rest = strings.TrimPrefix(input, "https://")
	case strings.HasPrefix(input, "http://"):
		explicitScheme = "http"
		rest = strings.TrimPrefix(input, "http://")
	case strings.Contains(input, "://"):
		return Candidates{}, errors.New(errors.KindConfig, "discovery.normalize",
			fmt.Sprintf("unsupported scheme in address: %s", input))
	}

	host, err := hostPort(rest)
	if err != nil {
		return Candidates{}, err
	}

	isIPv4 := ipv4Pattern.MatchString(host)

	if explicitScheme != "" {
		var urls []string
		switch {
		case explicitScheme == "https" && isIPv4:
			urls = []string{"https://" + host}
		case explicitScheme == "https":
			urls = []string{"https://" + host, "http://" + host}
		case isIPv4: // explicit http + IPv4
			urls = []string{"http://" + host}
		default: // explicit http + hostname: upgrade, no retry
			urls = []string{"https://" + host}
		}
		return Candidates{URLs: urls, Class: ClassExplicitScheme}, nil
	}

	if isIPv4 {
		return Candidates{
			URLs:  []string{"http://" + host},
			Class: ClassIPv4Literal,
		}, nil
	}
	return Candidates{
		URLs:  []string{"https://" + host, "http://" + host},
		Class: ClassHostname,
	}, nil
}

// hostPort extracts host[:port] from the scheme-less remainder, discarding
// any path, query or fragment the user pasted along.
func hostPort(rest string) (string, error) {
	u, err := url.Parse("http://" + rest)
	if err != nil || u.Host == "" {
		return "", errors.New(errors.KindConfig, "discovery.normalize",
			fmt.Sprintf("cannot parse server address: %s", rest))
	}
	return u.Host, nil
}
