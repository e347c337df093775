package wechat

// Metadata selectors, tried in order; the first non-empty match wins.
var (
	TitleSelectors       = []string{"#activity-name", "h1"}
	AuthorSelectors      = []string{"#js_name", ".rich_media_meta_text"}
	AccountSelectors     = []string{"#js_name", "#profileBt"}
	PublishTimeSelectors = []string{"#publish_time", "#post-date"}
)

const (
	ContentSelector         = "#js_content"
	FallbackContentSelector = ".rich_media_content"
)

// Load-more affordances on the mobile history page
var (
	LoadMoreSelectors = []string{".js_profile_load_more", "#js_profile_load_more"}
	LoadMoreText      = "加载更多"
)

// ProfileBlockPhrases mark the history page as walled off
var ProfileBlockPhrases = []string{
	"请在微信客户端打开",
	"环境异常",
	"操作频繁",
}

// ProfileBlockSelectors are wall elements that carry no fixed text
var ProfileBlockSelectors = []string{".weui-msg__title"}

// ArticleBlockPhrases mark an article page as a verification or throttle wall
var ArticleBlockPhrases = []string{
	"请在微信客户端打开",
	"环境异常",
	"操作频繁",
	"访问过于频繁",
}

// NotEligiblePhrases appear when the scanning user has no Official Account to log into
var NotEligiblePhrases = []string{"绑定", "注册"}
