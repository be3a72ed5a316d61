package posts

import (
	"strings"

	"golang.org/x/net/html"
)

// dropped elements lose their content as well as their tags
var droppedElements = map[string]bool{
	"script": true, "style": true, "iframe": true, "object": true,
	"embed": true, "form": true, "noscript": true, "template": true,
}

var allowedElements = map[string]bool{
	"a": true, "abbr": true, "b": true, "blockquote": true, "br": true,
	"caption": true, "cite": true, "code": true, "del": true, "div": true,
	"em": true, "figcaption": true, "figure": true, "h1": true, "h2": true,
	"h3": true, "h4": true, "h5": true, "h6": true, "hr": true, "i": true,
	"img": true, "ins": true, "li": true, "mark": true, "ol": true, "p": true,
	"pre": true, "q": true, "s": true, "span": true, "strong": true, "sub": true,
	"sup": true, "table": true, "tbody": true, "td": true, "tfoot": true,
	"th": true, "thead": true, "tr": true, "u": true, "ul": true,
}

var allowedAttributes = map[string]bool{
	"href": true, "src": true, "alt": true, "title": true, "class": true,
	"id": true, "rel": true, "target": true, "width": true, "height": true,
	"colspan": true, "rowspan": true, "cite": true, "datetime": true,
}

// SanitizeText strips all markup and collapses whitespace. It is used for
// single-line fields such as titles.
func SanitizeText(s string) string {
	var b strings.Builder
	walk(s, func(tok html.Token, skipping bool) {
		if tok.Type == html.TextToken && !skipping {
			b.WriteString(tok.Data)
		}
	})
	return strings.Join(strings.Fields(b.String()), " ")
}

// SanitizeContent keeps post markup and block editor comments but removes
// active content: scripts, embeds, event handler attributes and javascript:
// URLs.
func SanitizeContent(s string) string {
	var b strings.Builder
	walk(s, func(tok html.Token, skipping bool) {
		if skipping {
			return
		}
		switch tok.Type {
		case html.TextToken:
			b.WriteString(html.EscapeString(tok.Data))
		case html.CommentToken:
			b.WriteString("<!--" + tok.Data + "-->")
		case html.StartTagToken, html.SelfClosingTagToken, html.EndTagToken:
			if !allowedElements[tok.Data] {
				return
			}
			tok.Attr = filterAttributes(tok.Attr)
			b.WriteString(tok.String())
		}
	})
	return strings.TrimSpace(b.String())
}

// walk tokenizes s and calls fn for every token. skipping is true inside
// dropped elements.
func walk(s string, fn func(tok html.Token, skipping bool)) {
	z := html.NewTokenizer(strings.NewReader(s))
	depth := 0

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return
		}

		tok := z.Token()
		if droppedElements[tok.Data] {
			switch tt {
			case html.StartTagToken:
				depth++
				continue
			case html.EndTagToken:
				if depth > 0 {
					depth--
				}
				continue
			case html.SelfClosingTagToken:
				continue
			}
		}

		fn(tok, depth > 0)
	}
}

func filterAttributes(attrs []html.Attribute) []html.Attribute {
	kept := attrs[:0]
	for _, a := range attrs {
		key := strings.ToLower(a.Key)
		if !allowedAttributes[key] || a.Namespace != "" {
			continue
		}
		if key == "href" || key == "src" {
			scheme := strings.ToLower(strings.TrimSpace(a.Val))
			if strings.HasPrefix(scheme, "javascript:") || strings.HasPrefix(scheme, "data:") || strings.HasPrefix(scheme, "vbscript:") {
				continue
			}
		}
		kept = append(kept, a)
	}
	return kept
}
