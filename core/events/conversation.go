package events

const (
	// KindUserMessageAdded identifies a user message appended to history.
	KindUserMessageAdded Kind = "user_input.message_added"
	// KindAttachmentAdded identifies an attachment message appended to history.
	KindAttachmentAdded Kind = "attachment.added"
	// KindAttachmentRejected identifies an attachment that was dropped.
	KindAttachmentRejected Kind = "attachment.rejected"
	// KindSourcesAdded identifies an annotated-sources message appended to
	// history.
	KindSourcesAdded Kind = "sources.added"
)

type UserMessageAdded struct {
	Base
	MessageID   string
	Text        string
	Attachments int
}

func NewUserMessageAdded(messageID, text string, attachments int, opts ...BaseOption) UserMessageAdded {
	return UserMessageAdded{Base: NewBase(KindUserMessageAdded, opts...), MessageID: messageID, Text: text, Attachments: attachments}
}

type AttachmentAdded struct {
	Base
	MessageID      string
	AttachmentKind string
	MIMEType       string
	Size           int
}

func NewAttachmentAdded(messageID, kind, mimeType string, size int, opts ...BaseOption) AttachmentAdded {
	return AttachmentAdded{
		Base:           NewBase(KindAttachmentAdded, opts...),
		MessageID:      messageID,
		AttachmentKind: kind,
		MIMEType:       mimeType,
		Size:           size,
	}
}

type AttachmentRejected struct {
	Base
	AttachmentKind string
	Reason         string
}

func NewAttachmentRejected(kind, reason string, opts ...BaseOption) AttachmentRejected {
	return AttachmentRejected{Base: NewBase(KindAttachmentRejected, opts...), AttachmentKind: kind, Reason: reason}
}

type SourcesAdded struct {
	Base
	MessageID string
	Count     int
}

func NewSourcesAdded(messageID string, count int, opts ...BaseOption) SourcesAdded {
	return SourcesAdded{Base: NewBase(KindSourcesAdded, opts...), MessageID: messageID, Count: count}
}
