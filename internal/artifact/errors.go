package artifact

import (
	"fmt"
	"strings"

	"songfactory/internal/services"
)

// VerificationError reports a downloaded file that was rejected and removed.
// Either Reasons (content validation) or Expected/Actual (size tolerance) is
// set.
type VerificationError struct {
	Path     string
	Reasons  []string
	Expected int64
	Actual   int64
}

func (e *VerificationError) Error() string {
	if len(e.Reasons) > 0 {
		return fmt.Sprintf("verification_failed: %s: %s", e.Path, strings.Join(e.Reasons, "; "))
	}
	return fmt.Sprintf("verification_failed: %s: size mismatch (expected %d bytes, got %d)", e.Path, e.Expected, e.Actual)
}

// ErrorKind classifies the error for catalog notes.
func (e *VerificationError) ErrorKind() services.Kind {
	return services.KindVerificationFailed
}
