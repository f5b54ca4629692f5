package sanitize

import (
	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer 对邮件HTML正文做存储前消毒，移除脚本与危险属性。
// 消毒发生在加密落盘之前，读取路径直接返回已消毒内容。
type Sanitizer struct {
	policy *bluemonday.Policy
}

// New 构造HTML消毒器。
// 策略基于 UGC 白名单，额外放行邮件常见的表格与样式标签。
func New() *Sanitizer {
	p := bluemonday.UGCPolicy()
	p.AllowElements("table", "thead", "tbody", "tfoot", "tr", "td", "th",
		"center", "font", "style")
	p.AllowAttrs("style").Globally()
	p.AllowAttrs("width", "height", "align", "valign", "bgcolor",
		"cellpadding", "cellspacing", "border").OnElements("table", "td", "th", "tr")
	p.AllowAttrs("color", "face", "size").OnElements("font")
	p.AllowImages()
	p.AllowStandardURLs()
	return &Sanitizer{policy: p}
}

// HTML 消毒HTML内容
func (s *Sanitizer) HTML(html string) string {
	if html == "" {
		return ""
	}
	return s.policy.Sanitize(html)
}
