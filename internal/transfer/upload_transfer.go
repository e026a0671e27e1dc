package transfer

// FallbackUploadResponse is the body returned by the form-upload fallback
// host.
type FallbackUploadResponse struct {
	Success bool `json:"success"`
	Status  int  `json:"status"`
	Data    struct {
		Link  string `json:"link"`
		Error string `json:"error"`
	} `json:"data"`
}
