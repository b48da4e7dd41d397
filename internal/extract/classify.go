package extract

import (
	"context"
	"errors"
	"net"

	"github.com/nao1215/marginalia/internal/model"
)

// Code is a coarse error class used in logs and stored document records.
type Code string

// Error codes returned by Classify.
const (
	CodeNetwork Code = "network"
	CodeFormat  Code = "format"
	CodeCancel  Code = "cancel"
	CodeInvalid Code = "invalid"
	CodeUnknown Code = "unknown"
)

// Classify maps an error from extraction or reconciliation to a Code.
// A nil error is CodeUnknown.
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	// Cancellation wins over whatever the call was doing at the time.
	if errors.Is(err, context.Canceled) {
		return CodeCancel
	}
	if errors.Is(err, model.ErrExtractionFormat) {
		return CodeFormat
	}
	if errors.Is(err, model.ErrExtractionUnavailable) {
		return CodeNetwork
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	if errors.Is(err, model.ErrMalformedInput) || errors.Is(err, model.ErrMalformedText) {
		return CodeInvalid
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return CodeNetwork
	}
	return CodeUnknown
}
