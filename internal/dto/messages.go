package dto

// Kafka topics for the renewal pipeline
const (
	TopicReAuthorizeInit  = "re_authorize.init"
	TopicReAuthorizeChunk = "re_authorize.chunk"
)

// ReAuthorizeInitMessage kicks off one renewal run. The job id ties all
// chunks of a run together in the logs.
type ReAuthorizeInitMessage struct {
	JobID       string `json:"job_id"`
	ScheduledAt string `json:"scheduled_at"`
}

// ReAuthorizeChunkMessage carries one batch of candidate transaction ids.
// Workers re-check each candidate against live state before acting, so
// stale or duplicated chunks are safe.
type ReAuthorizeChunkMessage struct {
	JobID                 string  `json:"job_id"`
	PaymentTransactionIDs []int64 `json:"payment_transaction_ids"`
}
