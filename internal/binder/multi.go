package binder

import "errors"

// Multi applies every mutation to each surface in order. All surfaces are
// tried; their errors are joined.
type Multi []Surface

func (m Multi) Append(id string) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Append(id))
	}
	return errors.Join(errs...)
}

func (m Multi) SetStatus(id, status string) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.SetStatus(id, status))
	}
	return errors.Join(errs...)
}

func (m Multi) Remove(id string) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Remove(id))
	}
	return errors.Join(errs...)
}
