package errors

import stderrors "errors"

// Kind 错误分类，决定对外的 HTTP 状态码
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindUnavailable
	KindRateLimited
)

func (d Definition) Error() string {
	return d.Message
}

// Definition 表示业务错误码及默认信息。
type Definition struct {
	Code    string
	Message string
	Kind    Kind
}

// WithMessage 复制一份带自定义信息的错误，错误码不变
func (d Definition) WithMessage(msg string) Definition {
	d.Message = msg
	return d
}

// Is 按错误码比较，便于 errors.Is(err, QuestNotFound)
func (d Definition) Is(target error) bool {
	t, ok := target.(Definition)
	return ok && t.Code == d.Code
}

// 通用错误。
var (
	ValidationFailed    = Definition{Code: "VALIDATION_ERROR", Message: "Validation failed", Kind: KindValidation}
	InvalidUserID       = Definition{Code: "INVALID_USER_ID", Message: "Invalid user ID format", Kind: KindValidation}
	Unauthorized        = Definition{Code: "UNAUTHORIZED", Message: "Unauthorized", Kind: KindValidation}
	UpstreamUnavailable = Definition{Code: "UPSTREAM_UNAVAILABLE", Message: "Upstream service unavailable", Kind: KindUnavailable}
	TooManyRequests     = Definition{Code: "TOO_MANY_REQUESTS", Message: "Too many requests, please try again later", Kind: KindRateLimited}
	Internal            = Definition{Code: "INTERNAL_ERROR", Message: "Internal error", Kind: KindInternal}
)

// 任务模块错误。
var (
	InvalidQuestID        = Definition{Code: "INVALID_QUEST_ID", Message: "Invalid quest ID", Kind: KindValidation}
	InvalidTrigger        = Definition{Code: "INVALID_TRIGGER", Message: "Unknown quest trigger", Kind: KindValidation}
	QuestNotFound         = Definition{Code: "QUEST_NOT_FOUND", Message: "Quest not found or not active", Kind: KindNotFound}
	QuestProgressNotFound = Definition{Code: "QUEST_PROGRESS_NOT_FOUND", Message: "Quest progress not found for the current period", Kind: KindNotFound}
	QuestAlreadyClaimed   = Definition{Code: "QUEST_ALREADY_CLAIMED", Message: "Reward already claimed for this period", Kind: KindConflict}
	QuestNotCompleted     = Definition{Code: "QUEST_NOT_COMPLETED", Message: "Quest not completed yet", Kind: KindValidation}
	ClaimInProgress       = Definition{Code: "CLAIM_IN_PROGRESS", Message: "Another claim for this quest is in progress", Kind: KindConflict}
)

// 奖励账本错误。
var (
	RewardLedgerNotFound = Definition{Code: "REWARD_LEDGER_NOT_FOUND", Message: "Reward ledger not found", Kind: KindNotFound}
	CheckInAlreadyDone   = Definition{Code: "CHECK_IN_ALREADY_DONE", Message: "Already checked in today", Kind: KindConflict}
)

// Lookup 提供错误码查询能力。
var Lookup = map[string]Definition{
	ValidationFailed.Code:      ValidationFailed,
	InvalidUserID.Code:         InvalidUserID,
	Unauthorized.Code:          Unauthorized,
	UpstreamUnavailable.Code:   UpstreamUnavailable,
	TooManyRequests.Code:       TooManyRequests,
	Internal.Code:              Internal,
	InvalidQuestID.Code:        InvalidQuestID,
	InvalidTrigger.Code:        InvalidTrigger,
	QuestNotFound.Code:         QuestNotFound,
	QuestProgressNotFound.Code: QuestProgressNotFound,
	QuestAlreadyClaimed.Code:   QuestAlreadyClaimed,
	QuestNotCompleted.Code:     QuestNotCompleted,
	ClaimInProgress.Code:       ClaimInProgress,
	RewardLedgerNotFound.Code:  RewardLedgerNotFound,
	CheckInAlreadyDone.Code:    CheckInAlreadyDone,
}

// Get 根据错误码返回 Definition，若不存在则返回空 Definition。
func Get(code string) Definition {
	if def, ok := Lookup[code]; ok {
		return def
	}
	return Definition{Code: code, Message: "Unexpected error"}
}

// As 从错误链中取出业务错误
func As(err error) (Definition, bool) {
	var def Definition
	if stderrors.As(err, &def) {
		return def, true
	}
	return Definition{}, false
}
