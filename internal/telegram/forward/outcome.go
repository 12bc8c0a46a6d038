package forward

// Outcome 单个目标投递的终态
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// 跳过与失败原因
const (
	ReasonNoRule            = "no_rule"
	ReasonFilteredByKeyword = "filtered_by_keyword"
	ReasonDuplicate         = "duplicate"
	ReasonRateLimitExceeded = "rate_limit_exceeded"
	ReasonTargetUnreachable = "target_unreachable"
	ReasonDeliveryError     = "delivery_error"
)

// TargetResult 单个目标的投递结果
// 每个目标独立投递：一个目标失败不影响同规则的其他目标
type TargetResult struct {
	TargetChatID int64
	Outcome      Outcome
	Reason       string // Skipped/Failed 时的原因
	MessageID    int    // 投递成功后的新消息 ID
	Err          error
}

func deliveredResult(targetChatID int64, messageID int) TargetResult {
	return TargetResult{TargetChatID: targetChatID, Outcome: OutcomeDelivered, MessageID: messageID}
}

func skippedResult(targetChatID int64, reason string) TargetResult {
	return TargetResult{TargetChatID: targetChatID, Outcome: OutcomeSkipped, Reason: reason}
}

func failedResult(targetChatID int64, reason string, err error) TargetResult {
	return TargetResult{TargetChatID: targetChatID, Outcome: OutcomeFailed, Reason: reason, Err: err}
}
