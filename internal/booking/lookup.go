package booking

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

var nationalIDPattern = regexp.MustCompile(`^\d{8}$`)

// ResolvePatient resolves an 8-digit national ID, trying the clinic
// directory first and falling back to the external identity registry. A
// registry hit yields an unregistered Patient that must be persisted before
// an appointment can reference it.
func ResolvePatient(ctx context.Context, patients PatientDirectory, identity IdentityLookup, nationalID string) (*Patient, error) {
	if !nationalIDPattern.MatchString(nationalID) {
		return nil, fmt.Errorf("%w: national id must be 8 digits", ErrValidation)
	}

	p, err := patients.FindByNationalID(ctx, nationalID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrPatientNotFound) {
		return nil, fmt.Errorf("directory lookup: %w", err)
	}
	if identity == nil {
		return nil, err
	}

	person, err := identity.FindPerson(ctx, nationalID)
	if err != nil {
		return nil, fmt.Errorf("identity lookup: %w", err)
	}
	person.Registered = false
	return person, nil
}
