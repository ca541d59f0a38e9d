package device

import (
	"fmt"
	"math/bits"
)

// MaxResourceSlots is the number of independent transfer slots per device.
const MaxResourceSlots = 4

// FileType selects one transferable resource. Exactly one bit is set in a
// valid value.
type FileType uint32

// File types. The trailing digit is the resource slot.
const (
	FileDownloadMini0 FileType = 1 << 0
	FileDownloadMini1 FileType = 1 << 1
	FileDownloadMini2 FileType = 1 << 2
	FileDownloadMini3 FileType = 1 << 3

	FileDownloadImage0 FileType = 1 << 4
	FileDownloadImage1 FileType = 1 << 5
	FileDownloadImage2 FileType = 1 << 6
	FileDownloadImage3 FileType = 1 << 7

	FileUploadImage0 FileType = 1 << 8
	FileUploadImage1 FileType = 1 << 9
	FileUploadImage2 FileType = 1 << 10
	FileUploadImage3 FileType = 1 << 11

	FileDownloadVideo0 FileType = 1 << 12
	FileDownloadVideo1 FileType = 1 << 13
	FileDownloadVideo2 FileType = 1 << 14
	FileDownloadVideo3 FileType = 1 << 15

	FileUploadVideo0 FileType = 1 << 16
	FileUploadVideo1 FileType = 1 << 17
	FileUploadVideo2 FileType = 1 << 18
	FileUploadVideo3 FileType = 1 << 19

	FileDownloadLog FileType = 1 << 20
)

// ResourceKind is what a file type transfers.
type ResourceKind int

// Resource kinds.
const (
	ResourceThumbnail ResourceKind = iota
	ResourceImage
	ResourceVideo
	ResourceLog
)

func (k ResourceKind) String() string {
	switch k {
	case ResourceThumbnail:
		return "thumbnail"
	case ResourceImage:
		return "image"
	case ResourceVideo:
		return "video"
	case ResourceLog:
		return "log"
	default:
		return fmt.Sprintf("resource(%d)", int(k))
	}
}

// Direction of a transfer.
type Direction int

// Directions.
const (
	Download Direction = iota
	Upload
)

func (d Direction) String() string {
	if d == Upload {
		return "upload"
	}
	return "download"
}

// Valid reports whether t names exactly one known resource.
func (t FileType) Valid() bool {
	return t != 0 && t <= FileDownloadLog && bits.OnesCount32(uint32(t)) == 1
}

func (t FileType) bit() int { return bits.TrailingZeros32(uint32(t)) }

// Slot returns the resource slot, 0-3. The log shares slot 0.
func (t FileType) Slot() int {
	if t == FileDownloadLog {
		return 0
	}
	return t.bit() % MaxResourceSlots
}

// Kind returns the resource kind.
func (t FileType) Kind() ResourceKind {
	switch b := t.bit(); {
	case b < 4:
		return ResourceThumbnail
	case b < 12:
		return ResourceImage
	case b < 20:
		return ResourceVideo
	default:
		return ResourceLog
	}
}

// Direction returns whether t is downloaded or uploaded.
func (t FileType) Direction() Direction {
	switch b := t.bit(); {
	case b >= 8 && b < 12, b >= 16 && b < 20:
		return Upload
	default:
		return Download
	}
}

// String returns names like "mini0", "image2", "upload_video1" or "log".
func (t FileType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("file_type(0x%X)", uint32(t))
	}
	if t == FileDownloadLog {
		return "log"
	}
	prefix := ""
	if t.Direction() == Upload {
		prefix = "upload_"
	}
	kind := t.Kind().String()
	if t.Kind() == ResourceThumbnail {
		kind = "mini"
	}
	return fmt.Sprintf("%s%s%d", prefix, kind, t.Slot())
}

// ParseFileType is the inverse of String.
func ParseFileType(s string) (FileType, error) {
	for b := 0; b <= 20; b++ {
		t := FileType(1) << b
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: file type %q", ErrInvalidArgument, s)
}

// DownloadResult is the terminal code of a download.
type DownloadResult int

// Download results.
const (
	DownloadSameWithLocal DownloadResult = 1
	DownloadSuccess       DownloadResult = 0
	DownloadNotExist      DownloadResult = -1
	DownloadErr           DownloadResult = -2
	DownloadTypeErr       DownloadResult = -3
	DownloadNameErr       DownloadResult = -4
)

func (r DownloadResult) String() string {
	switch r {
	case DownloadSameWithLocal:
		return "same_with_local"
	case DownloadSuccess:
		return "success"
	case DownloadNotExist:
		return "not_exist"
	case DownloadErr:
		return "download_error"
	case DownloadTypeErr:
		return "type_error"
	case DownloadNameErr:
		return "name_error"
	default:
		return fmt.Sprintf("download_result(%d)", int(r))
	}
}

// Upload progress sentinels. Values 0-99 are progress percentages; the
// sentinels mark the end of the job.
const (
	UploadSuccess = 100
	UploadError   = -1
	UploadWarn    = -2
	UploadFailure = -3
)
