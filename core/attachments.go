package orchestration

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/koscakluka/ema-chat/core/llms"
)

// validateImage decodes the image header and returns the MIME type of the
// detected format. The declared type is only a hint.
func validateImage(data []byte, declared string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty image", ErrAttachment)
	}

	config, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAttachment, err)
	}
	if config.Width <= 0 || config.Height <= 0 {
		return "", fmt.Errorf("%w: image has no pixels", ErrAttachment)
	}

	detected := "image/" + format
	if declared != "" && !strings.EqualFold(declared, detected) {
		logger.Debug("image type differs from declared type", "declared", declared, "detected", detected)
	}
	return detected, nil
}

func attachmentName(attachment llms.Attachment, index int) string {
	if attachment.Name != "" {
		return attachment.Name
	}
	extension := attachment.MIMEType
	if _, subtype, ok := strings.Cut(extension, "/"); ok {
		extension = subtype
	}
	if extension == "" {
		return fmt.Sprintf("%s-%d", attachment.Kind, index+1)
	}
	return fmt.Sprintf("%s-%d.%s", attachment.Kind, index+1, extension)
}
