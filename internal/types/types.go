package types

import "github.com/sanchez-kim/obj-viewer/internal/address"

// FramePair is the raw mesh and metadata of one frame as fetched by a transport.
type FramePair struct {
	Address  address.Frame
	MeshName string
	MetaName string
	Mesh     []byte
	Meta     []byte
}

// FrameMetadata matches the per-frame JSON shipped next to every mesh:
// {"3d_data": {"lip_vertices": {"<key>": [x, y, z], ...}}}
type FrameMetadata struct {
	Data *FaceData `json:"3d_data"`
}

// FaceData is the "3d_data" section of the frame metadata.
type FaceData struct {
	LipVertices map[string][]float64 `json:"lip_vertices"`
}
