package models

// StoredImage describes one image in the rotation: its timestamp-derived
// name and the on-disk artifact paths the store owns.
type StoredImage struct {
	Name      string `json:"name"`
	Path      string `json:"-"`
	ThumbPath string `json:"-"`
}

// FrameState is the read-only snapshot returned by GET /api/images and
// published on the event bus after every mutation.
type FrameState struct {
	Images       []string `json:"images"`
	CurrentIndex int      `json:"current_index"`
	Total        int      `json:"total"`
	Cycling      bool     `json:"cycling"`
}
