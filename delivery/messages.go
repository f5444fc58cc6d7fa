package delivery

type frameStart struct {
	Type string `json:"type"`
	ID   uint32 `json:"id"`
	Size int    `json:"size"`
}

type frameEnd struct {
	Type string `json:"type"`
	ID   uint32 `json:"id"`
}

type imgStart struct {
	Type      string `json:"type"`
	ID        uint32 `json:"id"`
	Size      int    `json:"size"`
	Chunks    int    `json:"chunks"`
	ChunkSize int    `json:"chunkSize"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

type imgEnd struct {
	Type    string `json:"type"`
	ID      uint32 `json:"id"`
	Size    int    `json:"size"`
	Success bool   `json:"success"`
}
