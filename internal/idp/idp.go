// Package idp answers SAML 2.0 authentication requests for logged-in members
// with signed assertions over the HTTP-POST binding.
package idp

import (
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
	"github.com/saproto/identity/internal/config"
	"github.com/saproto/identity/internal/model"
)

var (
	ErrMalformedRequest       = errors.New("malformed authentication request")
	ErrNotMember              = errors.New("user is not a member")
	ErrUnknownServiceProvider = errors.New("unknown service provider")
)

// assertionLifetime bounds both the bearer confirmation and the conditions.
const assertionLifetime = time.Minute

// PostResponse is what the POST binding form carries to the service provider.
type PostResponse struct {
	Destination  string
	SAMLResponse string
	RelayState   string
}

type IdentityProvider struct {
	issuer    string
	providers map[string]config.ServiceProvider
	keyPair   tls.Certificate
	now       func() time.Time
}

// New loads the signing key pair named in cfg from disk.
func New(cfg *config.IdentityProvider) (*IdentityProvider, error) {
	keyPair, err := tls.LoadX509KeyPair(cfg.Certificate, cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load identity provider key pair: %w", err)
	}
	return NewWithKeyPair(cfg, keyPair), nil
}

func NewWithKeyPair(cfg *config.IdentityProvider, keyPair tls.Certificate) *IdentityProvider {
	return &IdentityProvider{
		issuer:    cfg.Issuer,
		providers: cfg.ServiceProviders,
		keyPair:   keyPair,
		now:       time.Now,
	}
}

// Respond builds the signed response to rawRequest for user. member is nil
// for users without a membership.
func (p *IdentityProvider) Respond(user *model.User, member *model.Member, rawRequest, relayState string) (*PostResponse, error) {
	if member == nil {
		return nil, ErrNotMember
	}

	req, err := DecodeRequest(rawRequest)
	if err != nil {
		return nil, err
	}

	sp, ok := p.providers[base64.StdEncoding.EncodeToString([]byte(req.AssertionConsumerServiceURL))]
	if !ok {
		slog.Warn("saml request from unknown service provider",
			"acs", req.AssertionConsumerServiceURL,
			"issuer", req.Issuer,
		)
		return nil, fmt.Errorf("%w: %s", ErrUnknownServiceProvider, req.AssertionConsumerServiceURL)
	}

	doc, err := p.buildResponse(user, member, req, sp.Audience)
	if err != nil {
		return nil, err
	}

	xml, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize saml response: %w", err)
	}

	slog.Info("saml assertion issued",
		"user_id", user.ID,
		"audience", sp.Audience,
		"in_response_to", req.ID,
	)

	return &PostResponse{
		Destination:  req.AssertionConsumerServiceURL,
		SAMLResponse: base64.StdEncoding.EncodeToString(xml),
		RelayState:   relayState,
	}, nil
}

func (p *IdentityProvider) signingContext() (*dsig.SigningContext, error) {
	ctx := dsig.NewDefaultSigningContext(dsig.TLSCertKeyStore(p.keyPair))
	ctx.Canonicalizer = dsig.MakeC14N10ExclusiveCanonicalizerWithPrefixList("")
	err := ctx.SetSignatureMethod(dsig.RSASHA256SignatureMethod)
	if err != nil {
		return nil, err
	}
	return ctx, nil
}

// sign signs el and places the signature right after its Issuer, where the
// SAML schema expects it.
func (p *IdentityProvider) sign(el *etree.Element) (*etree.Element, error) {
	ctx, err := p.signingContext()
	if err != nil {
		return nil, err
	}

	signed, err := ctx.SignEnveloped(el)
	if err != nil {
		return nil, fmt.Errorf("failed to sign %s: %w", el.Tag, err)
	}

	last := len(signed.Child) - 1
	signature := signed.Child[last]
	signed.RemoveChildAt(last)

	position := 0
	if issuer := signed.SelectElement("Issuer"); issuer != nil {
		position = issuer.Index() + 1
	}
	signed.InsertChildAt(position, signature)

	return signed, nil
}
