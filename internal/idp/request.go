package idp

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/beevik/etree"
	"github.com/klauspost/compress/flate"
)

// maxRequestSize bounds the inflated AuthnRequest.
const maxRequestSize = 64 << 10

// AuthnRequest holds the fields of an incoming request the responder uses.
type AuthnRequest struct {
	ID                          string
	Issuer                      string
	AssertionConsumerServiceURL string
}

// DecodeRequest decodes a redirect-binding SAMLRequest value: base64, raw
// DEFLATE, then XML.
func DecodeRequest(raw string) (*AuthnRequest, error) {
	compressed, err := base64.StdEncoding.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrMalformedRequest, err)
	}

	reader := flate.NewReader(bytes.NewReader(compressed))
	defer reader.Close()

	xml, err := io.ReadAll(io.LimitReader(reader, maxRequestSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: inflate: %v", ErrMalformedRequest, err)
	}
	if len(xml) > maxRequestSize {
		return nil, fmt.Errorf("%w: request exceeds %d bytes", ErrMalformedRequest, maxRequestSize)
	}

	doc := etree.NewDocument()
	err = doc.ReadFromBytes(xml)
	if err != nil {
		return nil, fmt.Errorf("%w: xml: %v", ErrMalformedRequest, err)
	}

	root := doc.Root()
	if root == nil || root.Tag != "AuthnRequest" {
		return nil, fmt.Errorf("%w: not an AuthnRequest", ErrMalformedRequest)
	}

	req := &AuthnRequest{
		ID:                          root.SelectAttrValue("ID", ""),
		AssertionConsumerServiceURL: root.SelectAttrValue("AssertionConsumerServiceURL", ""),
	}
	if issuer := root.SelectElement("Issuer"); issuer != nil {
		req.Issuer = strings.TrimSpace(issuer.Text())
	}

	if req.ID == "" {
		return nil, fmt.Errorf("%w: missing ID", ErrMalformedRequest)
	}
	if req.AssertionConsumerServiceURL == "" {
		return nil, fmt.Errorf("%w: missing AssertionConsumerServiceURL", ErrMalformedRequest)
	}

	return req, nil
}

// EncodeRequest is the inverse of DecodeRequest. Service-provider tooling and
// tests use it to produce redirect-binding values.
func EncodeRequest(xml []byte) (string, error) {
	var buf bytes.Buffer
	writer, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return "", err
	}
	_, err = writer.Write(xml)
	if err != nil {
		return "", err
	}
	err = writer.Close()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
