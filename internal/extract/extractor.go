package extract

import (
	"mime"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"linkpreview/internal/domain"
)

// Extractor はgoqueryでHTMLを解析しメタデータを抽出する
type Extractor struct{}

// Verify interface implementation
var _ domain.Extractor = (*Extractor)(nil)

// New は新しいExtractorインスタンスを作成
func New() *Extractor {
	return &Extractor{}
}

// Extract はHTMLからメタデータドキュメントを組み立てる.
// 解析できない入力に対しては全フィールドが空のドキュメントを返す.
func (e *Extractor) Extract(html, contentType, sourceURL string) domain.Metadata {
	p, err := newPage(html, contentType, sourceURL)
	if err != nil {
		return domain.EmptyMetadata()
	}

	og := p.openGraph()
	return domain.Metadata{
		// トップレベルは常にOGの結果に合わせる
		Title:       og.Title,
		Description: og.Description,
		Image:       og.Image,
		OG:          og,
		Twitter:     p.twitter(og),
		Basic:       p.basic(),
		Icons:       p.icons(),
	}
}

func (p *page) openGraph() domain.OpenGraph {
	return domain.OpenGraph{
		Title:         p.first(titleChain...),
		Description:   p.first(descriptionChain...),
		Image:         p.resolve(p.first(imageChain...)),
		Type:          p.first(ogMeta("type")...),
		SiteName:      p.first(ogMeta("site_name")...),
		URL:           p.resolve(p.first(ogMeta("url")...)),
		Images:        p.resolveAll(p.all(property("og:image"), property("og:image:url"))),
		Locale:        p.first(ogMeta("locale")...),
		PublishedTime: p.first(ogMeta("article:published_time")...),
		ModifiedTime:  p.first(ogMeta("article:modified_time")...),
		Section:       p.first(ogMeta("article:section")...),
		Tags:          p.all(property("article:tag")),
	}
}

func (p *page) twitter(og domain.OpenGraph) domain.TwitterCard {
	return domain.TwitterCard{
		Card:        p.first(twitterMeta("card")...),
		Title:       p.first(append(twitterMeta("title"), fixed(og.Title))...),
		Description: p.first(append(twitterMeta("description"), fixed(og.Description))...),
		Image: p.resolve(p.first(append(
			append(twitterMeta("image"), twitterMeta("image:src")...),
			fixed(og.Image),
		)...)),
		Site:    p.first(twitterMeta("site")...),
		Creator: p.first(twitterMeta("creator")...),
		Images: p.resolveAll(p.all(
			name("twitter:image"), property("twitter:image"),
			name("twitter:image:src"), property("twitter:image:src"),
		)),
	}
}

func (p *page) basic() domain.BasicMeta {
	return domain.BasicMeta{
		Charset:    p.first(charsetChain...),
		Viewport:   p.first(name("viewport")),
		ThemeColor: p.first(name("theme-color")),
		Robots:     p.first(name("robots")),
		Canonical:  p.resolve(p.first(linkRel("canonical"))),
		Lang:       p.first(htmlLang),
		Author:     p.first(name("author")),
	}
}

func (p *page) icons() domain.Icons {
	return domain.Icons{
		Icon:           p.resolveAll(p.all(linkRel("icon"))),
		Shortcut:       p.resolveAll(p.all(linkRel("shortcut icon"))),
		AppleTouchIcon: p.resolveAll(p.all(linkRel("apple-touch-icon"), linkRel("apple-touch-icon-precomposed"))),
		MaskIcon:       p.resolveAll(p.all(linkRel("mask-icon"))),
		MSTile:         p.resolve(p.first(name("msapplication-tileimage"))),
	}
}

// page は一度だけ走査したドキュメントの索引
type page struct {
	doc         *goquery.Document
	contentType string
	base        *url.URL

	// 小文字化したキー → 文書順のcontent値
	byName     map[string][]string
	byProperty map[string][]string
	byRel      map[string][]string
	// 複数キーにまたがる収集を文書順で行うための並び
	ordered []indexed
}

// indexed は要素1つ分の値. 同じ要素が name と property の両方を持つと2件になる.
type indexed struct {
	elem  int
	key   source
	value string
}

func newPage(html, contentType, sourceURL string) (*page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	p := &page{
		doc:         doc,
		contentType: contentType,
		byName:      make(map[string][]string),
		byProperty:  make(map[string][]string),
		byRel:       make(map[string][]string),
	}
	if base, err := url.Parse(strings.TrimSpace(sourceURL)); err == nil && base.IsAbs() {
		p.base = base
	}
	// 別オリジンへの付け替えは許さない
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok && p.base != nil {
		if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
			if resolved := p.base.ResolveReference(ref); sameOrigin(resolved, p.base) {
				p.base = resolved
			}
		}
	}

	doc.Find("meta, link[rel]").Each(func(i int, s *goquery.Selection) {
		if goquery.NodeName(s) == "link" {
			rel := normalizeRel(s.AttrOr("rel", ""))
			href := strings.TrimSpace(s.AttrOr("href", ""))
			p.byRel[rel] = append(p.byRel[rel], href)
			p.ordered = append(p.ordered, indexed{i, source{kindRel, rel}, href})
			return
		}
		content := strings.TrimSpace(s.AttrOr("content", ""))
		if v, ok := s.Attr("name"); ok {
			key := strings.ToLower(strings.TrimSpace(v))
			p.byName[key] = append(p.byName[key], content)
			p.ordered = append(p.ordered, indexed{i, source{kindName, key}, content})
		}
		if v, ok := s.Attr("property"); ok {
			key := strings.ToLower(strings.TrimSpace(v))
			p.byProperty[key] = append(p.byProperty[key], content)
			p.ordered = append(p.ordered, indexed{i, source{kindProperty, key}, content})
		}
	})

	return p, nil
}

// first は候補を順に評価し、最初の空でない値を返す
func (p *page) first(chain ...candidate) string {
	for _, c := range chain {
		if v := c.value(p); v != "" {
			return v
		}
	}
	return ""
}

// all は指定ソースに一致する全ての値を文書順で集める. 空値のみ除外する.
func (p *page) all(sources ...candidate) []string {
	wanted := make(map[source]bool, len(sources))
	for _, c := range sources {
		if c.src.kind != 0 {
			wanted[c.src] = true
		}
	}

	values := []string{}
	last := -1
	for _, entry := range p.ordered {
		if entry.elem == last || !wanted[entry.key] || entry.value == "" {
			continue
		}
		values = append(values, entry.value)
		last = entry.elem
	}
	return values
}

func (p *page) resolve(raw string) string {
	return ResolveURL(raw, p.base)
}

func (p *page) resolveAll(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if v := p.resolve(r); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func sameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}

func normalizeRel(rel string) string {
	return strings.Join(strings.Fields(strings.ToLower(rel)), " ")
}

func contentTypeCharset(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}
