package domain

// WhisperModelOption is one downloadable ggml model for the whisper-local backend.
type WhisperModelOption struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	FileName    string `json:"fileName"`
	URL         string `json:"url"`
	SizeLabel   string `json:"sizeLabel,omitempty"`
	Description string `json:"description,omitempty"`
	Downloaded  bool   `json:"downloaded"`
	LocalPath   string `json:"localPath,omitempty"`
	Selected    bool   `json:"selected"`
}
