package devices

// InputError marks a frame the device got wrong. Only its Message is sent back to the
// device; every other handler failure is answered with a generic internal error.
type InputError struct {
	Message string
	Err     error
}

func (e *InputError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *InputError) Unwrap() error {
	return e.Err
}

func invalidInput(message string) error {
	return &InputError{Message: message}
}
