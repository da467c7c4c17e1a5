package mqtt

import "strings"

// ResolveTopic joins the base topic and a message type. At most one
// trailing slash is removed from base first, so "a/b/" and "a/b" both
// give "a/b/<type>". An empty base gives "/<type>".
func ResolveTopic(base, messageType string) string {
	return strings.TrimSuffix(base, "/") + "/" + messageType
}
