// Package topic implements MQTT topic splitting and filter matching: plain
// segment comparison plus the "+" single-level and "#" multi-level
// wildcards. Only these two wildcards are honoured; "$SYS"-style reserved
// prefixes receive no special treatment.
package topic

import "strings"

// Split breaks a topic or filter into its "/"-delimited segments.
func Split(s string) []string {
	return strings.Split(s, "/")
}

// Match reports whether the concrete topic matches filter, honoring "+" and
// trailing "#" wildcards per MQTT 3.1.1 §4.7.
func Match(topic, filter string) bool {
	if filter == "#" {
		return true
	}

	topicSegs := Split(topic)
	filterSegs := Split(filter)

	if filterSegs[len(filterSegs)-1] == "#" {
		prefix := filterSegs[:len(filterSegs)-1]
		if len(topicSegs) < len(prefix) {
			return false
		}
		for i, seg := range prefix {
			if seg != "+" && seg != topicSegs[i] {
				return false
			}
		}
		return true
	}

	if len(topicSegs) != len(filterSegs) {
		return false
	}
	for i, seg := range filterSegs {
		if seg != "+" && seg != topicSegs[i] {
			return false
		}
	}
	return true
}
