package idp

import (
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"github.com/saproto/identity/internal/model"
)

const (
	nsProtocol  = "urn:oasis:names:tc:SAML:2.0:protocol"
	nsAssertion = "urn:oasis:names:tc:SAML:2.0:assertion"

	statusSuccess             = "urn:oasis:names:tc:SAML:2.0:status:Success"
	nameIDFormatEmail         = "urn:oasis:names:tc:SAML:1.1:nameid-format:emailAddress"
	confirmationMethodBearer  = "urn:oasis:names:tc:SAML:2.0:cm:bearer"
	authnContextPasswordProtT = "urn:oasis:names:tc:SAML:2.0:ac:classes:PasswordProtectedTransport"
	attributeNameFormat       = "urn:oasis:names:tc:SAML:2.0:attrname-format:unspecified"

	timeFormat = "2006-01-02T15:04:05Z"
)

func newID() string {
	return "_" + uuid.NewString()
}

func instant(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

// buildResponse assembles the Response with its signed Assertion, then signs
// the Response as well.
func (p *IdentityProvider) buildResponse(user *model.User, member *model.Member, req *AuthnRequest, audience string) (*etree.Document, error) {
	now := p.now().UTC()

	assertion, err := p.sign(p.buildAssertion(user, member, req, audience, now))
	if err != nil {
		return nil, err
	}

	response := etree.NewElement("samlp:Response")
	response.CreateAttr("xmlns:samlp", nsProtocol)
	response.CreateAttr("xmlns:saml", nsAssertion)
	response.CreateAttr("ID", newID())
	response.CreateAttr("Version", "2.0")
	response.CreateAttr("IssueInstant", instant(now))
	response.CreateAttr("Destination", req.AssertionConsumerServiceURL)
	response.CreateAttr("InResponseTo", req.ID)

	response.CreateElement("saml:Issuer").SetText(p.issuer)
	response.CreateElement("samlp:Status").
		CreateElement("samlp:StatusCode").
		CreateAttr("Value", statusSuccess)
	response.AddChild(assertion)

	signed, err := p.sign(response)
	if err != nil {
		return nil, err
	}

	doc := etree.NewDocument()
	doc.SetRoot(signed)
	return doc, nil
}

func (p *IdentityProvider) buildAssertion(user *model.User, member *model.Member, req *AuthnRequest, audience string, now time.Time) *etree.Element {
	expires := instant(now.Add(assertionLifetime))
	id := newID()

	assertion := etree.NewElement("saml:Assertion")
	assertion.CreateAttr("xmlns:saml", nsAssertion)
	assertion.CreateAttr("ID", id)
	assertion.CreateAttr("Version", "2.0")
	assertion.CreateAttr("IssueInstant", instant(now))

	assertion.CreateElement("saml:Issuer").SetText(p.issuer)

	subject := assertion.CreateElement("saml:Subject")
	nameID := subject.CreateElement("saml:NameID")
	nameID.CreateAttr("Format", nameIDFormatEmail)
	nameID.SetText(user.Email)

	confirmation := subject.CreateElement("saml:SubjectConfirmation")
	confirmation.CreateAttr("Method", confirmationMethodBearer)
	data := confirmation.CreateElement("saml:SubjectConfirmationData")
	data.CreateAttr("InResponseTo", req.ID)
	data.CreateAttr("NotOnOrAfter", expires)
	data.CreateAttr("Recipient", req.AssertionConsumerServiceURL)

	conditions := assertion.CreateElement("saml:Conditions")
	conditions.CreateAttr("NotBefore", instant(now))
	conditions.CreateAttr("NotOnOrAfter", expires)
	conditions.CreateElement("saml:AudienceRestriction").
		CreateElement("saml:Audience").
		SetText(audience)

	statement := assertion.CreateElement("saml:AuthnStatement")
	statement.CreateAttr("AuthnInstant", instant(now))
	statement.CreateAttr("SessionIndex", id)
	statement.CreateElement("saml:AuthnContext").
		CreateElement("saml:AuthnContextClassRef").
		SetText(authnContextPasswordProtT)

	attributes := assertion.CreateElement("saml:AttributeStatement")
	for _, attr := range []struct{ name, value string }{
		{"mail", user.Email},
		{"displayName", user.Name},
		{"cn", user.Name},
		{"givenName", user.GivenName()},
		{"uid", member.ProtoUsername},
	} {
		el := attributes.CreateElement("saml:Attribute")
		el.CreateAttr("Name", "urn:mace:dir:attribute-def:"+attr.name)
		el.CreateAttr("NameFormat", attributeNameFormat)
		el.CreateElement("saml:AttributeValue").SetText(attr.value)
	}

	return assertion
}
