package identifier

import (
	"encoding/base32"
	"hash/fnv"
	"strconv"
)

// New returns a short stable identifier derived from the tokens.
func New(tokens ...string) string {
	h := fnv.New64()
	for i, t := range tokens {
		if i > 0 {
			h.Write([]byte{0x1f})
		}
		h.Write([]byte(t))
	}
	sum := h.Sum(nil)

	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(sum)
}

// ForElement returns an identifier for a document element that has none of its
// own, such as a paragraph in an HTML questionnaire. The ordinal is the
// element's position in document order.
func ForElement(source string, ordinal int, text string) string {
	return New(source, strconv.Itoa(ordinal), text)
}
