package dto

// MarkReadResponse reports how many notifications changed.
type MarkReadResponse struct {
	Modified int64 `json:"modified"`
}
