package tgui

import (
	"fmt"
	"html"
	"strings"
)

// H is HTML that is safe to send with ParseMode="HTML". Values of type H are
// already escaped.
type H string

func (h H) String() string { return string(h) }

// Esc escapes text for Telegram HTML parse mode.
func Esc(s string) H { return H(html.EscapeString(s)) }

// Escf formats then escapes.
func Escf(format string, args ...any) H { return Esc(fmt.Sprintf(format, args...)) }

func wrap(tag string, inner H) H { return H("<" + tag + ">" + string(inner) + "</" + tag + ">") }

func B(s string) H    { return wrap("b", Esc(s)) }
func I(s string) H    { return wrap("i", Esc(s)) }
func Code(s string) H { return wrap("code", Esc(s)) }

// JoinH joins the non-blank parts with sep.
func JoinH(sep string, parts ...H) H {
	ss := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(string(p)) == "" {
			continue
		}
		ss = append(ss, string(p))
	}
	return H(strings.Join(ss, sep))
}

// Lines accumulates a message one line at a time.
type Lines struct {
	b strings.Builder
}

// Add appends one line built from parts.
func (l *Lines) Add(parts ...H) *Lines {
	if l.b.Len() > 0 {
		l.b.WriteByte('\n')
	}
	for _, p := range parts {
		l.b.WriteString(string(p))
	}
	return l
}

// Blank appends an empty line.
func (l *Lines) Blank() *Lines {
	l.b.WriteByte('\n')
	return l
}

func (l *Lines) String() string { return l.b.String() }
