package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/google/uuid"

	"sms-chat-agent/internal/domain"
)

// Credentials stay valid well past the chat client's full retry window.
const sessionDuration = 15 * time.Minute

// ErrFederationRejected reports that STS refused to exchange the identity
// token for role credentials. Not retried; fatal to the current turn.
var ErrFederationRejected = errors.New("identity: federation rejected")

// stsAPI is the minimal STS interface required by Federator.
// *sts.Client from aws-sdk-go-v2 satisfies this interface.
type stsAPI interface {
	AssumeRoleWithWebIdentity(ctx context.Context, in *sts.AssumeRoleWithWebIdentityInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleWithWebIdentityOutput, error)
}

// TokenIssuer vends identity tokens for a subject.
type TokenIssuer interface {
	IssueToken(ctx context.Context, subject string) (string, error)
}

// Federator exchanges an identity token for temporary credentials scoped to
// a single downstream role.
type Federator struct {
	issuer  TokenIssuer
	api     stsAPI
	roleARN string
}

// NewFederator creates a Federator assuming the given role.
func NewFederator(issuer TokenIssuer, api stsAPI, roleARN string) (*Federator, error) {
	if issuer == nil {
		return nil, errors.New("identity: token issuer must not be nil")
	}
	if api == nil {
		return nil, errors.New("identity: sts api must not be nil")
	}
	if strings.TrimSpace(roleARN) == "" {
		return nil, errors.New("identity: role ARN must not be empty")
	}
	return &Federator{issuer: issuer, api: api, roleARN: roleARN}, nil
}

// Federate obtains temporary role credentials for the given subject
// identity. Each call uses a fresh session name, so concurrent federations
// for the same subject never collide.
func (f *Federator) Federate(ctx context.Context, subject string) (domain.FederatedCredentials, error) {
	token, err := f.issuer.IssueToken(ctx, subject)
	if err != nil {
		return domain.FederatedCredentials{}, err
	}

	out, err := f.api.AssumeRoleWithWebIdentity(ctx, &sts.AssumeRoleWithWebIdentityInput{
		RoleArn:          aws.String(f.roleARN),
		RoleSessionName:  aws.String(newSessionName()),
		WebIdentityToken: aws.String(token),
		DurationSeconds:  aws.Int32(int32(sessionDuration.Seconds())),
	})
	if err != nil {
		return domain.FederatedCredentials{}, fmt.Errorf("%w: %v", ErrFederationRejected, err)
	}
	if out == nil || out.Credentials == nil ||
		out.Credentials.AccessKeyId == nil || out.Credentials.SecretAccessKey == nil || out.Credentials.SessionToken == nil {
		return domain.FederatedCredentials{}, fmt.Errorf("%w: response missing credentials", ErrFederationRejected)
	}

	creds := domain.FederatedCredentials{
		AccessKeyID:     *out.Credentials.AccessKeyId,
		SecretAccessKey: *out.Credentials.SecretAccessKey,
		SessionToken:    *out.Credentials.SessionToken,
	}
	if out.Credentials.Expiration != nil {
		creds.Expires = *out.Credentials.Expiration
	}
	return creds, nil
}

var newSessionName = func() string {
	return fmt.Sprintf("session-%s-%d", uuid.NewString(), time.Now().UnixMilli())
}
