package domain

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"reflect"
	"strings"
)

// Property is one named identity attribute of a Handle or Source.
// Properties whose Value is nil are left out of crunched strings.
type Property struct {
	Name  string
	Value any
}

// Crunchable is implemented by anything with a canonical identity string:
// every Handle and every Source.
type Crunchable interface {
	// CrunchName is the type name heading the crunched string.
	CrunchName() string

	// CrunchProperties lists the identity attributes in a stable order.
	CrunchProperties() []Property
}

// Optional returns nil for the empty string so that absent optional
// properties are omitted from crunched strings.
func Optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Crunch returns the canonical parenthesised key=value form of c, for
// example
//
//	FilesystemHandle(_source=(FilesystemSource(_path=/a/b));_relpath=c.txt)
//
// Embedded Crunchables are expanded recursively.
func Crunch(c Crunchable) string {
	var b strings.Builder
	writeCrunch(&b, c)
	return b.String()
}

func writeCrunch(b *strings.Builder, c Crunchable) {
	b.WriteString(c.CrunchName())
	b.WriteByte('(')
	first := true
	for _, p := range c.CrunchProperties() {
		if isNil(p.Value) {
			continue
		}
		if !first {
			b.WriteByte(';')
		}
		first = false
		b.WriteString(p.Name)
		b.WriteByte('=')
		switch v := p.Value.(type) {
		case Crunchable:
			b.WriteByte('(')
			writeCrunch(b, v)
			b.WriteByte(')')
		case bool:
			if v {
				b.WriteString("True")
			} else {
				b.WriteString("False")
			}
		default:
			fmt.Fprint(b, v)
		}
	}
	b.WriteByte(')')
}

// CrunchHash returns the hex SHA-512 digest of the crunched form of c,
// computed over its backslash-escaped encoding.
func CrunchHash(c Crunchable) string {
	return HashCrunched(Crunch(c))
}

// HashCrunched hashes an already crunched string.
func HashCrunched(crunched string) string {
	sum := sha512.Sum512([]byte(UnicodeEscape(crunched)))
	return hex.EncodeToString(sum[:])
}

// SameIdentity reports whether a and b crunch to the same string.
func SameIdentity(a, b Crunchable) bool {
	if isNil(a) || isNil(b) {
		return isNil(a) && isNil(b)
	}
	return Crunch(a) == Crunch(b)
}

// UnicodeEscape renders s as printable ASCII: backslashes and control
// characters are escaped, and non-ASCII code points become \xhh, \uhhhh or
// \Uhhhhhhhh sequences.
func UnicodeEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '\\':
			b.WriteString(`\\`)
		case r == '\t':
			b.WriteString(`\t`)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r < 0x20 || (r >= 0x7f && r < 0x100):
			fmt.Fprintf(&b, `\x%02x`, r)
		case r < 0x7f:
			b.WriteRune(r)
		case r < 0x10000:
			fmt.Fprintf(&b, `\u%04x`, r)
		default:
			fmt.Fprintf(&b, `\U%08x`, r)
		}
	}
	return b.String()
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func:
		return rv.IsNil()
	}
	return false
}
