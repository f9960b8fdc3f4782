package flows

import (
	"github.com/MrEthical07/goRotate/jwt"
)

// ValidateDeps captures access-token validation dependencies.
type ValidateDeps struct {
	VerifyAccess func(string) (*jwt.AccessClaims, error)
}

// ValidateResult returns either claims or a classified failure.
type ValidateResult struct {
	Failure FailureKind
	Err     error
	Claims  *jwt.AccessClaims
}

// RunValidate verifies an access token. It never consults the store.
func RunValidate(token string, deps ValidateDeps) ValidateResult {
	claims, err := deps.VerifyAccess(token)
	if err != nil {
		return ValidateResult{Failure: verifyFailure(err), Err: err}
	}
	return ValidateResult{Claims: claims}
}
