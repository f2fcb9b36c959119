package wire

import (
	"errors"
	"unicode"
	"unicode/utf8"

	"github.com/haukened/nfq-dnsfilter/internal/dns/domain"
)

const (
	dnsHeaderLen = 12
	maxLabelLen  = 63
)

var (
	// ErrUnsupportedLabel is returned for compression pointers and the
	// reserved extended label types (length byte above 63).
	ErrUnsupportedLabel = errors.New("unsupported label type")
	// ErrOutOfBounds is returned when the name runs past the end of the payload.
	ErrOutOfBounds = errors.New("invalid packet: out of bounds")
	// ErrBufferOverflow is returned when the decoded name does not fit the buffer.
	ErrBufferOverflow = errors.New("name exceeds buffer")
	// ErrInvalidText is returned when the name is not printable UTF-8.
	ErrInvalidText = errors.New("name is not valid text")
)

// DecodeQName writes the dotted question name of a DNS message into buf and
// returns the number of bytes written. A root name yields 0 and no error.
//
// The whole name is validated before anything is written, so buf is left
// untouched when an error is returned.
func DecodeQName(payload, buf []byte) (int, error) {
	if _, err := measureQName(payload, len(buf)); err != nil {
		return 0, err
	}

	idx, w := dnsHeaderLen, 0
	for {
		l := int(payload[idx])
		if l == 0 {
			break
		}
		if w > 0 {
			buf[w] = '.'
			w++
		}
		w += copy(buf[w:], payload[idx+1:idx+1+l])
		idx += 1 + l
	}
	return w, nil
}

// measureQName walks the labels and returns the decoded length, or the first
// error that decoding into a buffer of size limit would hit.
func measureQName(payload []byte, limit int) (int, error) {
	idx, size := dnsHeaderLen, 0
	for {
		if idx >= len(payload) {
			return 0, ErrOutOfBounds
		}
		l := int(payload[idx])
		if l == 0 {
			return size, nil
		}
		if l > maxLabelLen {
			return 0, ErrUnsupportedLabel
		}
		need := l
		if size > 0 {
			need++ // separator
		}
		if size+need > limit {
			return 0, ErrBufferOverflow
		}
		if idx+1+l > len(payload) {
			return 0, ErrOutOfBounds
		}
		size += need
		idx += 1 + l
	}
}

// QuestionName decodes the question name using buf as scratch space and
// returns it as validated text.
func QuestionName(payload, buf []byte) domain.DNSQuestion {
	n, err := DecodeQName(payload, buf)
	if err != nil {
		return domain.DNSQuestion{Err: err}
	}
	if !validText(buf[:n]) {
		return domain.DNSQuestion{Err: ErrInvalidText}
	}
	return domain.DNSQuestion{Name: string(buf[:n])}
}

// validText reports whether b is UTF-8 without control characters.
func validText(b []byte) bool {
	for i := 0; i < len(b); {
		c := b[i]
		if c < utf8.RuneSelf {
			if c < 0x20 || c == 0x7f {
				return false
			}
			i++
			continue
		}
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size == 1 {
			return false
		}
		if unicode.IsControl(r) {
			return false
		}
		i += size
	}
	return true
}

// ErrorKind maps a decode error to a stable label for logs and metrics.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnsupportedLabel):
		return "unsupported_label"
	case errors.Is(err, ErrOutOfBounds):
		return "out_of_bounds"
	case errors.Is(err, ErrBufferOverflow):
		return "buffer_overflow"
	case errors.Is(err, ErrInvalidText):
		return "invalid_text"
	default:
		return "unknown"
	}
}
