package media

// Artifact is the finished media file produced for one request. It is
// read-only once produced.
type Artifact struct {
	Path        string `json:"-"`
	DisplayName string `json:"displayName"`
	Extension   string `json:"extension"`
	SizeBytes   int64  `json:"sizeBytes"`
}

// Filename is the name offered to the caller, e.g. "My Video.mp4".
func (a *Artifact) Filename() string {
	if a.Extension == "" {
		return a.DisplayName
	}
	return a.DisplayName + "." + a.Extension
}
