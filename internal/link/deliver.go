package link

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"magiccal/internal/codec"
	"magiccal/internal/model"
)

// Platform is the caller-supplied hint for how the document should reach
// the user's calendar app.
type Platform string

const (
	// PlatformDirectOpen hands the document to the OS calendar app
	// (mobile Safari and similar) instead of saving it.
	PlatformDirectOpen Platform = "direct-open"
	// PlatformDownload saves the document as a file.
	PlatformDownload Platform = "download"
)

// Mechanism names the hand-off performed by the presentation layer.
type Mechanism string

const (
	MechanismOpen     Mechanism = "open"
	MechanismDownload Mechanism = "download"
)

// ErrUnknownPlatform is returned by Deliver for an unrecognized platform.
var ErrUnknownPlatform = errors.New("unknown delivery platform")

// DeliveryAction describes how to hand a serialized event to the user. It
// carries no side effects; the caller performs the action.
type DeliveryAction struct {
	FileName    string    `json:"file_name"`
	MIMEType    string    `json:"mime_type"`
	Content     []byte    `json:"content"`
	Mechanism   Mechanism `json:"mechanism"`
	Disposition string    `json:"disposition"`
	// URI is a data: URI with the encoded document; set for direct-open.
	URI string `json:"uri,omitempty"`
}

// ParsePlatform maps a request value onto a Platform.
func ParsePlatform(s string) (Platform, error) {
	switch p := Platform(strings.ToLower(strings.TrimSpace(s))); p {
	case PlatformDirectOpen, PlatformDownload:
		return p, nil
	default:
		return "", fmt.Errorf("link: %w: %q", ErrUnknownPlatform, s)
	}
}

// Deliver encodes ev with enc and describes how to hand it off on platform.
// The encoded bytes are identical for both platforms.
func Deliver(ev model.Event, platform Platform, enc codec.Codec) (DeliveryAction, error) {
	switch platform {
	case PlatformDirectOpen, PlatformDownload:
	default:
		return DeliveryAction{}, fmt.Errorf("link: %w: %q", ErrUnknownPlatform, platform)
	}

	content, err := enc.Encode(ev)
	if err != nil {
		return DeliveryAction{}, fmt.Errorf("link: encode: %w", err)
	}

	action := DeliveryAction{
		FileName: FileName(ev.Title, enc.Extension()),
		MIMEType: enc.MIMEType(),
		Content:  content,
	}

	if platform == PlatformDirectOpen {
		action.Mechanism = MechanismOpen
		action.Disposition = "inline"
		action.URI = "data:" + enc.MIMEType() + ";charset=utf-8;base64," +
			base64.StdEncoding.EncodeToString(content)
	} else {
		action.Mechanism = MechanismDownload
		action.Disposition = "attachment"
	}
	return action, nil
}

var unsafeFileChars = regexp.MustCompile(`(?i)[^a-z0-9]`)

// FileName derives a file name from an event title: every character other
// than an ASCII letter or digit becomes "_" and the result is lowercased.
func FileName(title, ext string) string {
	return strings.ToLower(unsafeFileChars.ReplaceAllString(title, "_")) + ext
}
