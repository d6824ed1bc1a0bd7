package controllers

// EnqueueRequest is the POST /api/jobs payload: one or more source URLs
// sharing the same download-selection parameters.
type EnqueueRequest struct {
	URLs             []string `json:"urls"`
	Format           string   `json:"format"`
	OutputFormat     string   `json:"output_format"`
	OutputPath       string   `json:"output_path"`
	FilenameTemplate string   `json:"filename_template"`
}

type EnqueueResponse struct {
	IDs []string `json:"ids"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
