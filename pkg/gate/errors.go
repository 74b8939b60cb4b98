package gate

import "errors"

// Reason is the machine-readable cause attached to a rejected verdict.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonNoImage            Reason = "NO_IMAGE"
	ReasonImageReadError     Reason = "IMAGE_READ_ERROR"
	ReasonImageTooSmall      Reason = "IMAGE_TOO_SMALL"
	ReasonInvalidOrientation Reason = "INVALID_ORIENTATION"
	ReasonInvalidLayout      Reason = "INVALID_LAYOUT"
	ReasonNotLandscape       Reason = "NOT_LANDSCAPE"
	ReasonOverlayDetected    Reason = "UI_OR_OVERLAY_DETECTED"
	ReasonMultiTransaction   Reason = "MULTI_TRANSACTION_OR_HISTORY"
	ReasonFormatMismatch     Reason = "FORMAT_MISMATCH"
	ReasonUploadTooSmall     Reason = "UPLOAD_TOO_SMALL"
	ReasonSystemError        Reason = "SYSTEM_ERROR"
)

var (
	// ErrNoImage is returned when a request carries no image part at all.
	ErrNoImage = errors.New("no image supplied")
	// ErrImageRead is returned when bytes do not decode to a non-empty image.
	ErrImageRead = errors.New("image could not be read")
	// ErrEmptyRegion is returned when a region of interest collapses to zero area.
	ErrEmptyRegion = errors.New("empty region of interest")
	// ErrNoReference is returned when a pipeline is built without a reference template.
	ErrNoReference = errors.New("reference template not loaded")
	// ErrUnknownProfile is returned when a profile name is not configured.
	ErrUnknownProfile = errors.New("unknown profile")
)
