package domain

import (
	"strconv"
	"strings"
)

// ClipType 是 producer 的类别，数值与工程文件中 kdenlive:producer_type 保持一致。
type ClipType int

const (
	ClipUnknown ClipType = iota
	ClipAudio
	ClipVideo
	ClipAV
	ClipColor
	ClipImage
	ClipText
	ClipSlideShow
	ClipVirtual
	ClipPlaylist
	ClipWebVfx
	ClipTextTemplate
	ClipQText
	ClipComposition
	ClipTrack
	ClipQml
	ClipAnimation
	ClipTimeline
)

var clipTypeNames = [...]string{
	ClipUnknown:      "unknown",
	ClipAudio:        "audio",
	ClipVideo:        "video",
	ClipAV:           "av",
	ClipColor:        "color",
	ClipImage:        "image",
	ClipText:         "text",
	ClipSlideShow:    "slideshow",
	ClipVirtual:      "virtual",
	ClipPlaylist:     "playlist",
	ClipWebVfx:       "webvfx",
	ClipTextTemplate: "text_template",
	ClipQText:        "qtext",
	ClipComposition:  "composition",
	ClipTrack:        "track",
	ClipQml:          "qml",
	ClipAnimation:    "animation",
	ClipTimeline:     "timeline",
}

func (c ClipType) String() string {
	if c < 0 || int(c) >= len(clipTypeNames) {
		return "unknown"
	}
	return clipTypeNames[c]
}

func (c ClipType) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *ClipType) UnmarshalText(b []byte) error {
	v := strings.TrimSpace(string(b))
	for i, n := range clipTypeNames {
		if n == v {
			*c = ClipType(i)
			return nil
		}
	}
	*c = ClipUnknown
	return nil
}

// ParseClipType 解析 kdenlive:producer_type 的数值形式；无法识别时返回 ClipUnknown, false。
func ParseClipType(s string) (ClipType, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 || n >= len(clipTypeNames) {
		return ClipUnknown, false
	}
	return ClipType(n), true
}

// FileBased 表示该类别的 producer 依赖磁盘上的源文件（或目录）。
func (c ClipType) FileBased() bool {
	switch c {
	case ClipAudio, ClipVideo, ClipAV, ClipImage, ClipSlideShow, ClipPlaylist, ClipTextTemplate, ClipAnimation, ClipQml:
		return true
	default:
		return false
	}
}
