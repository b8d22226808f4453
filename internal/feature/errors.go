package feature

import "crateforge/internal/apperror"

// UnsupportedFormat, CorruptFile, Timeout, and Internal are the four error
// classes an Extractor implementation is allowed to return from Extract,
// matching the boundary contract.
func UnsupportedFormat(path string) *apperror.Error {
	return &apperror.Error{Code: apperror.UnsupportedFormat, Message: "unsupported file format: " + path}
}

func CorruptFile(path string, cause error) *apperror.Error {
	return apperror.Wrap(apperror.CorruptFile, cause, "corrupt file: %s", path)
}

func Timeout(path string) *apperror.Error {
	return apperror.Wrap(apperror.Timeout, nil, "extraction of %s exceeded its time budget", path)
}

func Internal(path string, cause error) *apperror.Error {
	return apperror.Wrap(apperror.Internal, cause, "extractor failure for %s", path)
}

func rangeErrorf(field string, got, min, max float64) *apperror.Error {
	return apperror.Wrap(apperror.CorruptFile, nil, "%s %.4f out of range [%.2f, %.2f]", field, got, min, max)
}

func countErrorf(n int) *apperror.Error {
	return apperror.Wrap(apperror.CorruptFile, nil, "energy_timeseries has %d samples, need at least 8", n)
}

func monotonicErrorf() *apperror.Error {
	return apperror.Wrap(apperror.CorruptFile, nil, "energy_timeseries timestamps are not monotonic non-decreasing")
}

func keyMismatchErrorf(key, camelot string) *apperror.Error {
	return apperror.Wrap(apperror.Internal, nil, "key %q and camelot %q disagree", key, camelot)
}
