package dex

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ParseProto splits a method prototype "(ILjava/lang/String;[J)V" into its
// parameter descriptors and return descriptor.
func ParseProto(proto string) (params []string, ret string, err error) {
	if !strings.HasPrefix(proto, "(") {
		return nil, "", errors.Errorf("malformed prototype %q", proto)
	}
	end := strings.IndexByte(proto, ')')
	if end < 0 || end == len(proto)-1 {
		return nil, "", errors.Errorf("malformed prototype %q", proto)
	}
	body := proto[1:end]
	for i := 0; i < len(body); {
		n, err := descriptorLen(body[i:])
		if err != nil { return nil, "", errors.Wrapf(err, "prototype %q", proto) }
		params = append(params, body[i:i+n])
		i += n
	}
	ret = proto[end+1:]
	if n, err := descriptorLen(ret); err != nil || n != len(ret) {
		return nil, "", errors.Errorf("malformed return type in %q", proto)
	}
	return params, ret, nil
}

func descriptorLen(s string) (int, error) {
	i := 0
	for i < len(s) && s[i] == '[' {
		i++
	}
	if i >= len(s) { return 0, errors.Errorf("truncated descriptor %q", s) }
	switch s[i] {
	case 'V', 'Z', 'B', 'S', 'C', 'I', 'J', 'F', 'D':
		return i + 1, nil
	case 'L':
		end := strings.IndexByte(s[i:], ';')
		if end < 0 { return 0, errors.Errorf("unterminated class descriptor %q", s) }
		return i + end + 1, nil
	}
	return 0, errors.Errorf("bad descriptor %q", s)
}

// MangleForJni escapes a name for use in a JNI symbol, following the rules
// of the Java Native Interface specification.
func MangleForJni(name string) string {
	var sb strings.Builder
	for _, ch := range name {
		switch {
		case ch >= 'A' && ch <= 'Z', ch >= 'a' && ch <= 'z', ch >= '0' && ch <= '9':
			sb.WriteRune(ch)
		case ch == '.' || ch == '/': sb.WriteString("_")
		case ch == '_': sb.WriteString("_1")
		case ch == ';': sb.WriteString("_2")
		case ch == '[': sb.WriteString("_3")
		default:
			if ch > 0xffff {
				hi, lo := utf16Pair(ch)
				fmt.Fprintf(&sb, "_0%04x_0%04x", hi, lo)
			} else {
				fmt.Fprintf(&sb, "_0%04x", ch)
			}
		}
	}
	return sb.String()
}

func utf16Pair(r rune) (rune, rune) {
	r -= 0x10000
	return 0xd800 + (r>>10)&0x3ff, 0xdc00 + r&0x3ff
}

// JniShortName is Java_<mangled class>_<mangled method>.
func JniShortName(class, method string) string {
	class = strings.TrimSuffix(strings.TrimPrefix(class, "L"), ";")
	return "Java_" + MangleForJni(class) + "_" + MangleForJni(method)
}

// JniLongName appends the mangled parameter signature to the short name so
// overloaded natives stay distinct.
func JniLongName(class, method, proto string) string {
	sig := strings.TrimPrefix(proto, "(")
	if i := strings.IndexByte(sig, ')'); i >= 0 { sig = sig[:i] }
	return JniShortName(class, method) + "__" + MangleForJni(sig)
}

// HexEscape renders every UTF-8 byte of s as a \xNN escape so the literal
// survives any C++ source encoding.
func HexEscape(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		fmt.Fprintf(&sb, "\\x%02x", s[i])
	}
	return sb.String()
}
