package entry

import "chronicle/internal/chronicleerr"

func errMissingField(field string) error {
	return chronicleerr.New(chronicleerr.KindValidationFailed, "missing_field", field+" is required")
}

func errInvalidField(field, reason string) error {
	return chronicleerr.New(chronicleerr.KindValidationFailed, "invalid_field", field+": "+reason)
}
