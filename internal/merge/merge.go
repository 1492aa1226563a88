// Package merge performs per-subscriber placeholder substitution for
// broadcast templates. Placeholders are literal square-bracket tokens:
// [title] for custom properties, plus the reserved [name], [email] and
// [unsubscribe_link].
package merge

import (
	"strings"

	"github.com/foxzi/maillist/internal/models"
)

// Reserved placeholder names. They always resolve from the subscriber
// record itself, never from a custom property: a property titled "name"
// or "email" is deliberately shadowed by the reserved substitution.
const (
	PlaceholderName        = "name"
	PlaceholderEmail       = "email"
	PlaceholderUnsubscribe = "unsubscribe_link"
)

// Render substitutes all placeholders in template for one subscriber.
// Custom properties are substituted first, then the reserved
// placeholders, so the reserved values win over same-named properties.
// Empty property values substitute the empty string. The unsubscribe
// link is baseURL with the subscriber's raw token appended as a path
// segment.
func Render(template string, sub *models.Subscriber, baseURL string) string {
	out := template

	for title, value := range sub.Properties {
		if reserved(title) {
			continue
		}
		out = strings.ReplaceAll(out, "["+title+"]", value)
	}

	out = strings.ReplaceAll(out, "["+PlaceholderName+"]", sub.Name)
	out = strings.ReplaceAll(out, "["+PlaceholderEmail+"]", sub.Email)
	out = strings.ReplaceAll(out, "["+PlaceholderUnsubscribe+"]", Link(baseURL, sub.Token))

	return out
}

// Link builds the unsubscribe URL for a token.
func Link(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/" + token
}

func reserved(title string) bool {
	switch title {
	case PlaceholderName, PlaceholderEmail, PlaceholderUnsubscribe:
		return true
	}
	return false
}
