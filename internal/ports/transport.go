package ports

import (
	"context"

	"github.com/proctorline/relay/internal/domain"
)

// Transport is the remote collection API. Submit returns the server-assigned
// tracking path used later to reconcile the validation verdict.
type Transport interface {
	Submit(ctx context.Context, sub *domain.Submission) (path string, err error)
	SampleStatus(ctx context.Context, institutionID int, learnerID string, samples []string) ([]domain.StatusResult, error)
	RefreshCredential(ctx context.Context, cred domain.Credential) (domain.Credential, error)
}
