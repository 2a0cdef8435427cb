package auth

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path"
	"strings"

	"github.com/google/uuid"
	_ "golang.org/x/image/webp"
)

const (
	AvatarWidth   = 256
	AvatarHeight  = 256
	AvatarMaxSize = 2 << 20
	avatarDir     = "avatars"
)

var avatarFormats = map[string]struct {
	ext  string
	mime string
}{
	"png":  {".png", "image/png"},
	"jpeg": {".jpg", "image/jpeg"},
	"gif":  {".gif", "image/gif"},
	"webp": {".webp", "image/webp"},
}

// UploadedFile is an avatar upload as received from the client.
type UploadedFile struct {
	Name     string
	MimeType string
	Data     []byte
}

// AvatarImage is an upload that passed decoding and dimension checks.
// MimeType is the type the client sent, or the decoded format's type when
// the client sent none.
type AvatarImage struct {
	Path         string
	OriginalName string
	MimeType     string
	Data         []byte
}

// InspectAvatar decodes the image header and checks the format and the
// exact 256x256 dimensions. The returned message is suitable for a field
// error.
func InspectAvatar(file *UploadedFile) (*AvatarImage, string) {
	if file == nil || len(file.Data) == 0 {
		return nil, "the avatar must be an image"
	}
	if len(file.Data) > AvatarMaxSize {
		return nil, "the avatar may not be greater than 2048 kilobytes"
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(file.Data))
	if err != nil {
		return nil, "the avatar must be an image"
	}

	kind, ok := avatarFormats[format]
	if !ok {
		return nil, "the avatar must be a png, jpeg, gif or webp image"
	}

	if cfg.Width != AvatarWidth || cfg.Height != AvatarHeight {
		return nil, "the avatar has invalid image dimensions"
	}

	name := file.Name
	if name != "" {
		name = path.Base(name)
	}

	mime := strings.TrimSpace(file.MimeType)
	if mime == "" {
		mime = kind.mime
	}

	return &AvatarImage{
		Path:         path.Join(avatarDir, uuid.NewString()+kind.ext),
		OriginalName: name,
		MimeType:     mime,
		Data:         file.Data,
	}, ""
}
