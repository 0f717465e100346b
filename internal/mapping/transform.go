package mapping

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	ellipsis       = "..."
	joinSeparator  = "; "
	wordBreakRatio = 0.8
)

// Truncate shortens text to at most maxLength characters. When a space sits
// in the last fifth of the allowed length the cut happens there, otherwise
// the text is hard cut. A truncated result always ends in "...".
// maxLength <= 0 means no limit.
func Truncate(text string, maxLength int) string {
	if maxLength <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxLength {
		return text
	}
	if maxLength <= len(ellipsis) {
		return string(runes[:maxLength])
	}

	limit := maxLength - len(ellipsis)
	cut := limit
	for i := limit; i >= 0; i-- {
		if runes[i] == ' ' {
			if float64(i) >= wordBreakRatio*float64(maxLength) {
				cut = i
			}
			break
		}
	}

	head := strings.TrimRight(string(runes[:cut]), " ")
	return head + ellipsis
}

// joinValues renders every non-empty value and joins them with "; ".
func joinValues(values []any) (string, error) {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		s, err := scalarText(v)
		if err != nil {
			return "", err
		}
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, joinSeparator), nil
}

// cityZip formats each address as "City, ST 12345". Plain strings pass through.
func cityZip(values []any) (string, error) {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		var s string
		switch t := v.(type) {
		case map[string]any:
			s = formatCityZip(stringField(t, "city"), stringField(t, "state"), stringField(t, "zip"))
		case string:
			s = strings.TrimSpace(t)
		default:
			return "", fmt.Errorf("city_zip needs an address object, got %T", v)
		}
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, joinSeparator), nil
}

func formatCityZip(city, state, zip string) string {
	city, state, zip = strings.TrimSpace(city), strings.TrimSpace(state), strings.TrimSpace(zip)
	tail := strings.TrimSpace(state + " " + zip)
	switch {
	case city == "":
		return tail
	case tail == "":
		return city
	default:
		return city + ", " + tail
	}
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

// scalarText renders a JSON leaf as text.
func scalarText(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case bool:
		if t {
			return "Yes", nil
		}
		return "No", nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("cannot render %T as text", v)
	}
}
