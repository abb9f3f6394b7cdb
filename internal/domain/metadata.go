package domain

// Metadata は抽出済みのメタデータドキュメントを表す.
// Cached はレスポンス時にのみ設定され、キャッシュに保存される値は常に false.
type Metadata struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Image       string      `json:"image"`
	OG          OpenGraph   `json:"og"`
	Twitter     TwitterCard `json:"twitter"`
	Basic       BasicMeta   `json:"basic"`
	Icons       Icons       `json:"icons"`
	Cached      bool        `json:"cached"`
}

// OpenGraph は og:* および article:* タグの抽出結果.
type OpenGraph struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Image         string   `json:"image"`
	Type          string   `json:"type,omitempty"`
	SiteName      string   `json:"site_name,omitempty"`
	URL           string   `json:"url,omitempty"`
	Images        []string `json:"images"`
	Locale        string   `json:"locale,omitempty"`
	PublishedTime string   `json:"published_time,omitempty"`
	ModifiedTime  string   `json:"modified_time,omitempty"`
	Section       string   `json:"section,omitempty"`
	Tags          []string `json:"tags"`
}

// TwitterCard は twitter:* タグの抽出結果.
type TwitterCard struct {
	Card        string   `json:"card,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Image       string   `json:"image"`
	Site        string   `json:"site,omitempty"`
	Creator     string   `json:"creator,omitempty"`
	Images      []string `json:"images"`
}

// BasicMeta はOG/Twitter以外の基本的なメタ情報.
type BasicMeta struct {
	Charset    string `json:"charset,omitempty"`
	Viewport   string `json:"viewport,omitempty"`
	ThemeColor string `json:"theme_color,omitempty"`
	Robots     string `json:"robots,omitempty"`
	Canonical  string `json:"canonical,omitempty"`
	Lang       string `json:"lang,omitempty"`
	Author     string `json:"author,omitempty"`
}

// Icons はアイコン系リンクの抽出結果. URLはすべて絶対URL.
type Icons struct {
	Icon           []string `json:"icon"`
	Shortcut       []string `json:"shortcut"`
	AppleTouchIcon []string `json:"apple_touch_icon"`
	MaskIcon       []string `json:"mask_icon"`
	MSTile         string   `json:"ms_tile,omitempty"`
}

// EmptyMetadata は全フィールドが空のドキュメントを返す.
// スライスは nil ではなく空で初期化し、JSONでは [] として出力される.
func EmptyMetadata() Metadata {
	return Metadata{
		OG:      OpenGraph{Images: []string{}, Tags: []string{}},
		Twitter: TwitterCard{Images: []string{}},
		Icons: Icons{
			Icon:           []string{},
			Shortcut:       []string{},
			AppleTouchIcon: []string{},
			MaskIcon:       []string{},
		},
	}
}

// WithCached は Cached フラグだけを差し替えたコピーを返す.
func (m Metadata) WithCached(cached bool) Metadata {
	m.Cached = cached
	return m
}
