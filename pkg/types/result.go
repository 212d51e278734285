package types

// FileInfo describes one scanned file.
type FileInfo struct {
	Path     string  `json:"path"` // slash-separated, relative to the scan root
	Size     int64   `json:"size"`
	MtimeMs  float64 `json:"mtimeMs"`
	IsBinary bool    `json:"isBinary"`
	SHA1     string  `json:"sha1,omitempty"`
}

// ScanStats are the scan's monotonically increasing counters.
type ScanStats struct {
	Files int   `json:"files"`
	Dirs  int   `json:"dirs"`
	Bytes int64 `json:"bytes"`
}

// ScanResult is the outcome of a completed scan. Files are sorted by path.
type ScanResult struct {
	Files     []FileInfo `json:"files"`
	Stats     ScanStats  `json:"stats"`
	CachePath string     `json:"cachePath"`
	Mode      ScanMode   `json:"mode"`
}

// ActionOutput is the side-channel data one action produced.
type ActionOutput struct {
	Index   int             `json:"index"` // 1-based position in the batch
	Kind    ActionKind      `json:"kind"`
	Path    string          `json:"path,omitempty"`
	Content string          `json:"content,omitempty"`
	Scan    *ScanResult     `json:"scan,omitempty"`
	Env     *EnvMergeReport `json:"env,omitempty"`
}

// Result is what one executor batch returns. It is never persisted.
type Result struct {
	OK       bool           `json:"ok"`
	ErrorLog string         `json:"errorLog,omitempty"`
	Data     []ActionOutput `json:"data,omitempty"`
}
