package specfile

import (
	"bytes"

	"github.com/pkg/errors"
)

var (
	clearSignBegin = []byte("-----BEGIN PGP SIGNED MESSAGE-----")
	sigBegin       = []byte("-----BEGIN PGP SIGNATURE-----")
)

// stripClearSign returns the JSON payload of data, unwrapping a PGP
// clear-sign envelope if present (spec.md §4.5). When data is not wrapped,
// it is returned unchanged. The second result reports whether an envelope
// was found.
func stripClearSign(data []byte) ([]byte, bool, error) {
	start := bytes.Index(data, clearSignBegin)
	if start < 0 {
		return data, false, nil
	}
	end := bytes.Index(data, sigBegin)
	if end < 0 || end < start {
		return nil, false, errors.Wrap(ErrInvalidSpecfileFormat, "clear-sign envelope missing signature marker")
	}

	body := data[start+len(clearSignBegin) : end]

	// The clear-sign header is followed by a blank-line-terminated block of
	// "Hash: <alg>" header lines, then the signed content itself.
	if nl := bytes.IndexByte(body, '\n'); nl >= 0 {
		rest := body[nl+1:]
		for {
			nl2 := bytes.IndexByte(rest, '\n')
			var line []byte
			if nl2 < 0 {
				line = rest
			} else {
				line = rest[:nl2]
			}
			if len(bytes.TrimSpace(line)) == 0 {
				if nl2 >= 0 {
					rest = rest[nl2+1:]
				} else {
					rest = nil
				}
				body = rest
				break
			}
			if !bytes.Contains(line, []byte(":")) {
				// Not a header line; the signed content starts immediately.
				break
			}
			if nl2 < 0 {
				rest = nil
				break
			}
			rest = rest[nl2+1:]
		}
	}

	return bytes.TrimSpace(body), true, nil
}

// wrapClearSign is a placeholder hook for signing: producing a genuine
// clear-sign envelope requires an external OpenPGP signer (a signing key is
// an outer-surface concern, spec.md §1's "not... key management"). Encode
// never calls this; it exists so callers that do have a signer can wrap
// Encode's output consistently with stripClearSign's unwrapping rule.
func wrapClearSign(hashHeader string, body []byte) []byte {
	var b bytes.Buffer
	b.Write(clearSignBegin)
	b.WriteByte('\n')
	b.WriteString("Hash: " + hashHeader)
	b.WriteByte('\n')
	b.WriteByte('\n')
	b.Write(body)
	b.WriteByte('\n')
	return b.Bytes()
}
