package model

import "fmt"

// ContentType tags a message body. The envelope copies it so relays can
// classify a message without decrypting it.
type ContentType uint8

const (
	ContentAny     ContentType = 0x00
	ContentText    ContentType = 0x01
	ContentFile    ContentType = 0x10
	ContentImage   ContentType = 0x12
	ContentAudio   ContentType = 0x14
	ContentVideo   ContentType = 0x16
	ContentPage    ContentType = 0x20
	ContentQuote   ContentType = 0x37
	ContentMoney   ContentType = 0x40
	ContentCommand ContentType = 0x88
	ContentHistory ContentType = 0x89
	ContentForward ContentType = 0xFF
)

var contentTypeNames = map[ContentType]string{
	ContentAny:     "any",
	ContentText:    "text",
	ContentFile:    "file",
	ContentImage:   "image",
	ContentAudio:   "audio",
	ContentVideo:   "video",
	ContentPage:    "page",
	ContentQuote:   "quote",
	ContentMoney:   "money",
	ContentCommand: "command",
	ContentHistory: "history",
	ContentForward: "forward",
}

func (t ContentType) String() string {
	if name, ok := contentTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("content(0x%02x)", uint8(t))
}
