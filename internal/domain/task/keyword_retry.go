package task

import "mercari/monitor/internal/domain"

// KeywordRetryTask parks a keyword sweep whose fetch exhausted the
// in-process retry budget. A worker picks it up from the stream and
// runs the sweep again later.
type KeywordRetryTask struct {
	Keyword    string                  `json:"keyword"`
	Conditions domain.SearchConditions `json:"conditions"`
	RetryCount int                     `json:"retry_count"`
	Error      string                  `json:"error"`
}

func (t *KeywordRetryTask) TaskType() string {
	return "KeywordRetryTask"
}

func (t *KeywordRetryTask) TaskValue() ([]byte, error) {
	return DefaultTaskValue(t)
}
