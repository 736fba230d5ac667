package domain

// Well-known extension field names shared by the feature adaptors.
const (
	FieldAttend     = "attend"
	FieldEnroll     = "enroll"
	FieldVote       = "vote"
	FieldStar       = "star"
	FieldStatus     = "status"
	FieldRID        = "rid"
	FieldJournal    = "journal"
	FieldDetail     = "detail"
	FieldScore      = "score"
	FieldAccept     = "accept"
	FieldPenalty    = "penalty"
	FieldNumAccept  = "num_accept"
	FieldNumSubmit  = "num_submit"
	FieldNumReplies = "num_replies"
	FieldUpdateAt   = "update_at"
	FieldReply      = "reply"
	FieldPIDs       = "pids"
	FieldDonePIDs   = "done_pids"
	FieldDAG        = "dag"
	FieldTitle      = "title"
	FieldHidden     = "hidden"
	FieldCategory   = "category"
	FieldTag        = "tag"
	FieldData       = "data"
	FieldBeginAt    = "begin_at"
	FieldEndAt      = "end_at"
	FieldRule       = "rule"
)

// RecordStatus mirrors the judge verdicts stored in a status record's "status" field.
type RecordStatus int

const (
	RecordStatusNone RecordStatus = iota
	RecordStatusAccepted
	RecordStatusWrongAnswer
	RecordStatusTimeLimitExceeded
	RecordStatusMemoryLimitExceeded
	RecordStatusOutputLimitExceeded
	RecordStatusRuntimeError
	RecordStatusCompileError
	RecordStatusSystemError
	RecordStatusCanceled
)

// Contest rules.
const (
	RuleOI  = 2
	RuleACM = 3
)
