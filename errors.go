package eident

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrOrderNotFound is an exported constant or variable used by the order engine.
	//
	// It covers both genuinely unknown order references and session-binding
	// mismatches; callers must not be able to tell the two apart.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderNotComplete is an exported constant or variable used by the order engine.
	ErrOrderNotComplete = errors.New("order not complete")
	// ErrOrderConsumed is an exported constant or variable used by the order engine.
	ErrOrderConsumed = errors.New("order already consumed")
	// ErrOrderExpired is an exported constant or variable used by the order engine.
	ErrOrderExpired = errors.New("order expired")
	// ErrCompletionDataMissing is an exported constant or variable used by the order engine.
	ErrCompletionDataMissing = errors.New("completion data missing")
	// ErrCompletionDataInvalid is an exported constant or variable used by the order engine.
	ErrCompletionDataInvalid = errors.New("completion data invalid")
	// ErrRemoteUnavailable is an exported constant or variable used by the order engine.
	ErrRemoteUnavailable = errors.New("remote identity provider unavailable")
	// ErrStoreUnavailable is an exported constant or variable used by the order engine.
	ErrStoreUnavailable = errors.New("order store unavailable")
	// ErrAttemptEnded is an exported constant or variable used by the order engine.
	ErrAttemptEnded = errors.New("authentication attempt ended")
	// ErrEngineNotReady is an exported constant or variable used by the order engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// MissingIdentityFieldsError reports which mandatory identity fields were
// empty in an order's completion data. It matches ErrCompletionDataInvalid
// under errors.Is so callers can treat it as a completion-data fault
// without inspecting the field list.
type MissingIdentityFieldsError struct {
	Fields []string
}

func (e *MissingIdentityFieldsError) Error() string {
	return fmt.Sprintf("completion data missing identity fields: %s", strings.Join(e.Fields, ", "))
}

// Is reports whether target is ErrCompletionDataInvalid.
func (e *MissingIdentityFieldsError) Is(target error) bool {
	return target == ErrCompletionDataInvalid
}
