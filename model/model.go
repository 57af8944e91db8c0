// Package model contains the domain entities of the topichub engine:
// topics, subscriptions, endpoints, delivery servers and messages.
package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const tablePrefix = "topichub_"

// UTCNow returns the current UTC time as float epoch seconds.
// All publication and synchronization timestamps in the engine use this unit.
func UTCNow() float64 {
	return float64(time.Now().UTC().UnixNano()) / 1e9
}

// ISOTimeFromUnix converts float epoch seconds to an ISO-8601 string in UTC.
// Returns an empty string for a zero input.
func ISOTimeFromUnix(epoch float64) string {
	if epoch == 0 {
		return ""
	}
	sec := int64(epoch)
	nsec := int64((epoch - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC().Format("2006-01-02T15:04:05.000000")
}

// CompileTopicPattern compiles a topic permission pattern into a regular expression.
//
// Pattern syntax: dot-separated segments where `*` matches exactly one segment
// (it does not cross dots) and `**` matches zero or more segments. A literal
// string matches only itself. Matching is case-insensitive.
//
// Malformed patterns are rejected so that configuration mistakes surface at
// registration time rather than during evaluation.
func CompileTopicPattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, fmt.Errorf("topic pattern must not be empty")
	}
	if strings.ContainsAny(pattern, " \t\r\n") {
		return nil, fmt.Errorf("topic pattern must not contain whitespace: %q", pattern)
	}
	if strings.Contains(pattern, "***") {
		return nil, fmt.Errorf("topic pattern must not contain more than two consecutive wildcards: %q", pattern)
	}

	expr := regexp.QuoteMeta(pattern)
	expr = strings.ReplaceAll(expr, `\*\*`, "__DOUBLE_WILDCARD__")
	expr = strings.ReplaceAll(expr, `\*`, `[^.]*`)
	expr = strings.ReplaceAll(expr, "__DOUBLE_WILDCARD__", ".*")

	compiled, err := regexp.Compile("(?i)^" + expr + "$")
	if err != nil {
		return nil, fmt.Errorf("invalid topic pattern %q: %w", pattern, err)
	}
	return compiled, nil
}
