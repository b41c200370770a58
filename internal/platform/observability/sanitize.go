package observability

import (
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"

	"github.com/orderflow/api/internal/platform/requestctx"
)

const (
	maxRouteLength      = 180
	maxMethodLength     = 10
	maxIdentifierLength = 64
	maxUserIDLength     = 128
)

// routeIdentifiers maps chi route parameters to the annotation key they are logged under.
var routeIdentifiers = map[string]string{
	"orderId":   requestctx.OrderID,
	"lineId":    requestctx.CartLineID,
	"productId": requestctx.ProductID,
}

func stripControl(value string, limit int) string {
	value = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
	if runes := []rune(value); len(runes) > limit {
		value = string(runes[:limit])
	}
	return value
}

// SanitizeRoute strips control characters from a route pattern or path.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return stripControl(route, maxRouteLength)
}

// SanitizeMethod keeps the letters of an HTTP method, upper-cased.
func SanitizeMethod(method string) string {
	method = strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && unicode.IsLetter(r) {
			return unicode.ToUpper(r)
		}
		return -1
	}, method)
	if len(method) > maxMethodLength {
		method = method[:maxMethodLength]
	}
	return method
}

// SanitizeIdentifier reduces an order, cart line or product id taken from a URL to the
// characters ids are minted from. Anything else becomes '_'.
func SanitizeIdentifier(id string) string {
	return sanitizeID(id, maxIdentifierLength)
}

// SanitizeUserID applies the identifier rules with room for provider uids.
func SanitizeUserID(uid string) string {
	return sanitizeID(uid, maxUserIDLength)
}

func sanitizeID(id string, limit int) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if len(id) > limit {
		id = id[:limit]
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.' || r == ':' || r == '@':
			return r
		}
		return '_'
	}, id)
}

// resourceAnnotations collects the order-domain ids a request addressed: route parameters first,
// then whatever handlers annotated, which wins on conflict.
func resourceAnnotations(rctx *chi.Context, annotated []requestctx.Annotation) []requestctx.Annotation {
	values := map[string]string{}
	var order []string
	set := func(key, value string) {
		value = SanitizeIdentifier(value)
		if value == "" {
			return
		}
		if _, seen := values[key]; !seen {
			order = append(order, key)
		}
		values[key] = value
	}
	if rctx != nil {
		for i, name := range rctx.URLParams.Keys {
			if key, ok := routeIdentifiers[name]; ok && i < len(rctx.URLParams.Values) {
				set(key, rctx.URLParams.Values[i])
			}
		}
	}
	for _, a := range annotated {
		set(a.Key, a.Value)
	}

	out := make([]requestctx.Annotation, 0, len(order))
	for _, key := range order {
		out = append(out, requestctx.Annotation{Key: key, Value: values[key]})
	}
	return out
}
