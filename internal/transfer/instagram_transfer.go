package transfer

import "encoding/json"

type InstagramErrorResponse struct {
	Error struct {
		Message        string `json:"message"`
		Type           string `json:"type"`
		Code           int    `json:"code"`
		ErrorSubcode   int    `json:"error_subcode"`
		IsTransient    bool   `json:"is_transient"`
		ErrorUserTitle string `json:"error_user_title"`
		ErrorUserMsg   string `json:"error_user_msg"`
		FbtraceID      string `json:"fbtrace_id"`
	} `json:"error"`
}

type InstagramID struct {
	ID string `json:"id"`
}

// ContainerStatus is the encoding state of a media container.
// StatusCode is one of EXPIRED, ERROR, FINISHED, IN_PROGRESS, PUBLISHED.
type ContainerStatus struct {
	ID         string `json:"id"`
	StatusCode string `json:"status_code"`
	Status     string `json:"status"`
}

type InsightValue struct {
	Value json.RawMessage `json:"value"`
}

type InsightMetric struct {
	Name       string         `json:"name"`
	Period     string         `json:"period"`
	Values     []InsightValue `json:"values"`
	TotalValue *InsightValue  `json:"total_value,omitempty"`
}

type InsightsResponse struct {
	Data []InsightMetric `json:"data"`
}

// MediaInsights is the flattened metric set of one media object.
type MediaInsights struct {
	Impressions int64
	Reach       int64
	Engagement  int64
	Likes       int64
	Comments    int64
	Saved       int64
	Shares      int64
	VideoViews  *int64
	Raw         json.RawMessage
}
