package request

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// Resolve substitutes every {name} in template with the string form of the
// matching parameter, in parameter order. Unknown placeholders stay as
// literal text.
func Resolve(template string, params Params) string {
	resolved := template
	for _, p := range params {
		resolved = strings.ReplaceAll(resolved, "{"+p.Name+"}", String(p.Value))
	}
	return resolved
}

// Placeholders returns the distinct placeholder names in template, in order
// of first appearance.
func Placeholders(template string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(template, -1)
	seen := make(map[string]bool, len(matches))
	var names []string
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Unresolved returns the placeholders still present in a resolved template.
func Unresolved(resolved string) []string {
	return Placeholders(resolved)
}

// BuildURL assembles protocol://host:port + endpoint + suffix. The suffix is
// appended verbatim and is expected to start with the delimiter the vendor
// API needs, usually "?".
func BuildURL(protocol, host string, port int, endpoint, suffix string) string {
	if protocol == "" {
		protocol = "http"
	}
	return fmt.Sprintf("%s://%s%s%s", protocol, net.JoinHostPort(host, strconv.Itoa(port)), endpoint, suffix)
}

// ValidateMethod normalises method to upper case and rejects anything
// outside GET, POST, PUT and DELETE.
func ValidateMethod(method string) (string, error) {
	m := strings.ToUpper(strings.TrimSpace(method))
	switch m {
	case "GET", "POST", "PUT", "DELETE":
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}
}
