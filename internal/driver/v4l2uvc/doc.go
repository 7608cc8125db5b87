// Package v4l2uvc is the Linux driver backend. It finds UVC cameras through
// sysfs, reads their USB descriptors without opening them and captures
// frames from the matching V4L2 node with memory-mapped buffers.
//
// The backend registers itself as "v4l2" on linux/amd64 and linux/arm64.
// Import it for its side effect:
//
//	import _ "github.com/smazurov/uvcnode/internal/driver/v4l2uvc"
package v4l2uvc
