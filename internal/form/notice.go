package form

// Variant styles a notice.
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Notice is a transient user-visible notification.
type Notice struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Variant     Variant `json:"variant"`
}

func (n Notice) IsError() bool { return n.Variant == VariantDestructive }

func success(title, description string) Notice {
	return Notice{Title: title, Description: description, Variant: VariantDefault}
}

func failure(description string) Notice {
	return Notice{Title: "Error", Description: description, Variant: VariantDestructive}
}

var (
	NoticeMissingCode   = failure("Please enter a code.")
	NoticeMissingDate   = failure("Please select a date.")
	NoticeEncodeFailed  = failure("Failed to generate QR code.")
	NoticeCopyFailed    = failure("Failed to copy text.")
	NoticeNothingToCopy = failure("Generate a QR code before copying.")
	NoticeCameraFailed  = failure("Could not access the camera. Check the permissions.")

	NoticeGenerated = success("Success!", "QR code generated successfully.")
	NoticeCopied    = success("Copied!", "Text copied to the clipboard.")
	NoticeScanned   = success("QR code detected!", "Code extracted successfully.")
)
