package forward

import "strings"

// EvaluateKeywords 关键词过滤判定（纯函数，无状态）
//
// 判定规则（黑白名单同时生效）：
//   - 文案包含任意黑名单关键词 → 拒绝
//   - 白名单非空时，文案必须至少包含一个白名单关键词，否则拒绝
//   - 黑白名单均为空 → 放行
//
// 比较不区分大小写；没有文案的消息按空字符串处理
func EvaluateKeywords(caption string, blacklist, whitelist []string) bool {
	text := strings.ToLower(caption)

	for _, keyword := range blacklist {
		if keyword == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(keyword)) {
			return false
		}
	}

	if len(whitelist) > 0 {
		found := false
		for _, keyword := range whitelist {
			if keyword == "" {
				continue
			}
			if strings.Contains(text, strings.ToLower(keyword)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}
