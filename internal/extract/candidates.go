package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

type sourceKind int

const (
	kindName sourceKind = iota + 1
	kindProperty
	kindRel
)

// source は索引上の1つのキー (meta name / meta property / link rel)
type source struct {
	kind sourceKind
	key  string
}

// candidate はフォールバックチェーンの1段. src か eval のどちらかを持つ.
type candidate struct {
	src  source
	eval func(p *page) string
}

func (c candidate) value(p *page) string {
	if c.eval != nil {
		return strings.TrimSpace(c.eval(p))
	}
	var values []string
	switch c.src.kind {
	case kindName:
		values = p.byName[c.src.key]
	case kindProperty:
		values = p.byProperty[c.src.key]
	case kindRel:
		values = p.byRel[c.src.key]
	}
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func name(key string) candidate {
	return candidate{src: source{kindName, strings.ToLower(key)}}
}

func property(key string) candidate {
	return candidate{src: source{kindProperty, strings.ToLower(key)}}
}

func linkRel(rel string) candidate {
	return candidate{src: source{kindRel, normalizeRel(rel)}}
}

func fixed(v string) candidate {
	return candidate{eval: func(*page) string { return v }}
}

func selectAttr(selector, attr string) candidate {
	return candidate{eval: func(p *page) string {
		return p.doc.Find(selector).First().AttrOr(attr, "")
	}}
}

// ogMeta は og:<key> → name=<key> → property=<key> の順で探す
func ogMeta(key string) []candidate {
	return []candidate{property("og:" + key), name(key), property(key)}
}

func twitterMeta(key string) []candidate {
	return []candidate{name("twitter:" + key), property("twitter:" + key)}
}

var (
	documentTitle = candidate{eval: func(p *page) string {
		return p.doc.Find("title").First().Text()
	}}
	firstImage = selectAttr("img", "src")
	htmlLang   = selectAttr("html", "lang")

	httpEquivCharset = candidate{eval: func(p *page) string {
		var charset string
		p.doc.Find("meta[http-equiv]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if !strings.EqualFold(strings.TrimSpace(s.AttrOr("http-equiv", "")), "content-type") {
				return true
			}
			charset = contentTypeCharset(s.AttrOr("content", ""))
			return false
		})
		return charset
	}}
	headerCharset = candidate{eval: func(p *page) string {
		return contentTypeCharset(p.contentType)
	}}
)

var (
	titleChain       = append(ogMeta("title"), documentTitle)
	descriptionChain = append(ogMeta("description"), name("description"))
	imageChain       = append(append(ogMeta("image"), ogMeta("image:url")...), firstImage)
	charsetChain     = []candidate{selectAttr("meta[charset]", "charset"), httpEquivCharset, headerCharset}
)
