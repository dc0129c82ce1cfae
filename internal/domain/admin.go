package domain

// StreamInfo summarises one output stream partition.
type StreamInfo struct {
	Name         string `json:"name"`
	Length       int64  `json:"length"`
	Groups       int64  `json:"groups"`
	FirstEntryID string `json:"first_entry_id,omitempty"`
	LastEntryID  string `json:"last_entry_id,omitempty"`
}

// ConsumerGroupInfo represents information about a downstream consumer group.
type ConsumerGroupInfo struct {
	Name            string `json:"name"`
	Consumers       int64  `json:"consumers"`
	Pending         int64  `json:"pending"`
	LastDeliveredID string `json:"last_delivered_id"`
}

// PendingMessageSummary provides a summary of pending messages for a consumer group.
type PendingMessageSummary struct {
	Total          int64            `json:"total"`
	FirstMessageID string           `json:"first_message_id,omitempty"`
	LastMessageID  string           `json:"last_message_id,omitempty"`
	ConsumerTotals map[string]int64 `json:"consumer_totals,omitempty"`
}

// StageStats reports the state of one pipeline stage.
type StageStats struct {
	Name       string `json:"name"`
	Workers    int    `json:"workers"`
	QueueDepth int    `json:"queue_depth"`
	QueueCap   int    `json:"queue_capacity"`
}

// PipelineStats is a point-in-time snapshot of the pipeline.
type PipelineStats struct {
	Stages    []StageStats `json:"stages"`
	Submitted int64        `json:"submitted"`
	Delivered int64        `json:"delivered"`
	Dropped   int64        `json:"dropped"`
	Closed    bool         `json:"closed"`
}
