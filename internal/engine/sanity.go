package engine

import "os"

// SanityReport describes runtime checks for the backend's external dependencies.
type SanityReport struct {
	LlamaBuilt bool   `json:"llama_built"`
	ModelPath  string `json:"model_path,omitempty"`
	ModelFound bool   `json:"model_found"`
	Error      string `json:"error,omitempty"`
}

// SanityCheck validates that the model file exists and llama support is compiled in.
// It does not load anything and is safe to call at any time.
func SanityCheck(cfg Config) SanityReport {
	r := SanityReport{LlamaBuilt: LlamaBuilt, ModelPath: cfg.ModelPath}
	if cfg.ModelPath == "" {
		r.Error = "model path not configured"
		return r
	}
	fi, err := os.Stat(cfg.ModelPath)
	switch {
	case err != nil:
		r.Error = err.Error()
	case fi.IsDir():
		r.Error = "model path is a directory"
	default:
		r.ModelFound = true
	}
	if r.Error == "" && !LlamaBuilt {
		r.Error = "llama support not built"
	}
	return r
}
