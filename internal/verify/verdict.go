package verify

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// comparePrompt asks a multimodal model for a strict same-person verdict. The reference
// image is sent first and the capture second.
const comparePrompt = `You are checking attendance at a work site kiosk.
Compare the two photos. The first is the enrolled reference photo, the second was just captured at the kiosk.
Answer whether both photos show the same person. Be strict: if a face is missing, covered, or you are unsure, answer false.
Respond with JSON only, exactly in this shape: {"match": true} or {"match": false}`

var codeFence = regexp.MustCompile("```(?:json|JSON)?\\s*\\n?|\\n?\\s*```")

// ErrMalformedVerdict is returned when the model output has no boolean match field.
var ErrMalformedVerdict = errors.New("malformed verdict")

// ParseVerdict extracts {"match": bool} from raw model output, tolerating code fences and
// text around the JSON object.
func ParseVerdict(raw string) (bool, error) {
	text := strings.TrimSpace(codeFence.ReplaceAllString(raw, ""))
	if text == "" {
		return false, fmt.Errorf("%w: empty response", ErrMalformedVerdict)
	}

	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		text = text[start : end+1]
	}

	var v struct {
		Match *bool `json:"match"`
	}
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return false, fmt.Errorf("%w: %v (response: %.200s)", ErrMalformedVerdict, err, raw)
	}
	if v.Match == nil {
		return false, fmt.Errorf("%w: missing match field (response: %.200s)", ErrMalformedVerdict, raw)
	}
	return *v.Match, nil
}
