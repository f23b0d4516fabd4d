package asserter

// Assurance-level and name-format constants used by the federated protocol
// layer. The asserter only tags attributes with them; it never builds wire
// messages.
const (
	// LOA1ClassRef is the basic-assurance authentication context.
	LOA1ClassRef = "http://idmanagement.gov/ns/assurance/loa/1"
	// LOA3ClassRef is the high-assurance authentication context that gates
	// verified attribute release.
	LOA3ClassRef = "http://idmanagement.gov/ns/assurance/loa/3"

	// RequestedAttributesClassRef prefixes an authentication-request context
	// entry that embeds an attribute list.
	RequestedAttributesClassRef = "http://idmanagement.gov/ns/requested_attributes?ReqAttr="

	// NameFormatPersistent marks the stable pseudonymous identifier.
	NameFormatPersistent = "urn:oasis:names:tc:SAML:2.0:nameid-format:persistent"
	// NameFormatEmail marks an email-address identifier.
	NameFormatEmail = "urn:oasis:names:tc:SAML:1.1:nameid-format:emailAddress"
)
