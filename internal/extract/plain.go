package extract

import "strings"

// extractPlain splits on form feeds, the page break of plain-text exports.
func extractPlain(payload []byte) ([]string, error) {
	return strings.Split(strings.ToValidUTF8(string(payload), "\ufffd"), "\f"), nil
}
