package navigation

import "github.com/dyluth/ldew/pkg/clinical"

// Visibility is what the page shows for a given directive and live status.
type Visibility struct {
	NextFormButtons   bool `json:"nextFormButtons"`
	NextRecordButtons bool `json:"nextRecordButtons"`

	// IgnoreAndGoToNextForm is the shortcut offered by the host's
	// required-fields dialog.
	IgnoreAndGoToNextForm bool `json:"ignoreAndGoToNextForm"`
}

// NextFormButtonsVisible resolves a directive against the current value of
// the form's completion field. Pages re-evaluate it on every status change.
func NextFormButtonsVisible(d ButtonDisplay, status clinical.CompletionStatus) bool {
	switch d {
	case DisplayShow:
		return true
	case DisplayHide:
		return false
	default:
		return status == clinical.StatusComplete
	}
}

// NextRecordButtonsVisible is false when the project hides the "next record"
// buttons and the current form is not an exception.
func NextRecordButtonsVisible(s Settings) bool {
	return !(s.HideNextRecordButton && !s.IsException)
}

// Evaluate computes every control's visibility for the given status.
func Evaluate(s Settings, status clinical.CompletionStatus) Visibility {
	return Visibility{
		NextFormButtons:       NextFormButtonsVisible(s.ForceButtonsDisplay, status),
		NextRecordButtons:     NextRecordButtonsVisible(s),
		IgnoreAndGoToNextForm: s.ForceButtonsDisplay == DisplayShow,
	}
}
