// Package asserter computes which identity attributes a relying service may
// receive and how each resolves, leaving wire encoding to the external
// protocol encoder.
package asserter

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/govlogin/idp-core/internal/errs"
	"github.com/govlogin/idp-core/internal/model"
	"github.com/govlogin/idp-core/internal/repository"
)

// Attribute is one recognized identity attribute name. The set is closed;
// anything else in a request is dropped, never dispatched on.
type Attribute string

const (
	AttrUUID       Attribute = "uuid"
	AttrEmail      Attribute = "email"
	AttrFirstName  Attribute = "first_name"
	AttrMiddleName Attribute = "middle_name"
	AttrLastName   Attribute = "last_name"
	AttrAddress1   Attribute = "address1"
	AttrAddress2   Attribute = "address2"
	AttrCity       Attribute = "city"
	AttrState      Attribute = "state"
	AttrZipcode    Attribute = "zipcode"
	AttrDOB        Attribute = "dob"
	AttrSSN        Attribute = "ssn"
	AttrPhone      Attribute = "phone"
)

// validPIIAttributes is the allow-list of bundle attributes resolved from
// decrypted PII (uuid and email resolve elsewhere).
var validPIIAttributes = map[Attribute]bool{
	AttrFirstName:  true,
	AttrMiddleName: true,
	AttrLastName:   true,
	AttrAddress1:   true,
	AttrAddress2:   true,
	AttrCity:       true,
	AttrState:      true,
	AttrZipcode:    true,
	AttrDOB:        true,
	AttrSSN:        true,
	AttrPhone:      true,
}

// Getter resolves an attribute value on demand. Getters are deferred so
// unused bundle entries cost nothing and PII decryption happens only for
// attributes the encoder actually reads.
type Getter func(ctx context.Context) (string, error)

// AssertedAttribute pairs a deferred resolver with protocol name-format
// metadata.
type AssertedAttribute struct {
	Getter       Getter
	NameFormat   string
	NameIDFormat string
}

// ServiceProvider is the relying service's static configuration slice the
// asserter needs.
type ServiceProvider struct {
	Issuer          string
	AttributeBundle []string
}

// Request is the attribute-relevant part of the relying service's
// authentication request: the raw authentication context class references.
type Request struct {
	AuthnContextClassRefs []string
}

// HighAssurance reports whether the request claims the high-assurance
// context.
func (r Request) HighAssurance() bool {
	for _, ref := range r.AuthnContextClassRefs {
		if ref == LOA3ClassRef {
			return true
		}
	}
	return false
}

var bundleSplit = regexp.MustCompile(`\W+`)

// requestedBundle extracts the attribute names embedded in the request's
// context entries, if any.
func (r Request) requestedBundle() []string {
	var joined []string
	for _, ref := range r.AuthnContextClassRefs {
		if strings.Contains(ref, RequestedAttributesClassRef) {
			joined = append(joined, strings.ReplaceAll(ref, RequestedAttributesClassRef, ""))
		}
	}
	if len(joined) == 0 {
		return nil
	}
	var out []string
	seen := map[string]bool{}
	for _, part := range bundleSplit.Split(strings.Join(joined, ":"), -1) {
		if part == "" || seen[part] {
			continue
		}
		seen[part] = true
		out = append(out, part)
	}
	return out
}

// PIIProvider supplies the decrypted PII of the active profile at
// assertion-build time.
type PIIProvider func(ctx context.Context) (model.PiiAttributes, error)

// Params carries everything one Build needs. Thresholds and identity links
// arrive explicitly; nothing is read from ambient state.
type Params struct {
	User            *model.User
	ServiceProvider ServiceProvider
	Request         Request
	// ActiveProfile is the user's active profile, nil when none exists.
	ActiveProfile *model.Profile
	Identities    repository.IdentityRepository
	// DecryptedPII resolves the active profile's PII; consulted lazily and
	// at most once per Build result.
	DecryptedPII PIIProvider
}

// Asserter computes the attribute release map for one assertion.
type Asserter struct {
	p Params
}

// New constructs an Asserter.
func New(p Params) *Asserter { return &Asserter{p: p} }

// Build resolves the effective bundle and returns the release map. High
// assurance claimed without an active profile is a caller contract violation
// and fails fast with errs.ErrPrecondition.
func (a *Asserter) Build() (map[Attribute]AssertedAttribute, error) {
	if a.p.User == nil {
		return nil, fmt.Errorf("user required: %w", errs.ErrPrecondition)
	}
	high := a.p.Request.HighAssurance()
	if high && a.p.ActiveProfile == nil {
		return nil, fmt.Errorf("high assurance with no active profile: %w", errs.ErrPrecondition)
	}

	attrs := map[Attribute]AssertedAttribute{
		AttrUUID: {
			Getter:       a.uuidGetter(),
			NameFormat:   NameFormatPersistent,
			NameIDFormat: NameFormatPersistent,
		},
	}

	bundle := a.bundle()
	if containsAttr(bundle, AttrEmail) {
		email := a.p.User.Email
		attrs[AttrEmail] = AssertedAttribute{
			Getter:       func(context.Context) (string, error) { return email, nil },
			NameFormat:   NameFormatEmail,
			NameIDFormat: NameFormatEmail,
		}
	}

	// Verified PII is released only at high assurance from a verified,
	// active profile, regardless of what the bundle asks for.
	if high && a.p.ActiveProfile != nil && a.p.ActiveProfile.Verified() {
		pii := a.memoizedPII()
		for _, name := range bundle {
			attr := Attribute(name)
			if !validPIIAttributes[attr] {
				continue
			}
			attrs[attr] = AssertedAttribute{Getter: piiGetter(pii, attr)}
		}
	}
	return attrs, nil
}

// bundle resolves the effective attribute bundle: request-embedded names win
// over the relying service's static bundle; unrecognized names survive here
// and are filtered at attach time.
func (a *Asserter) bundle() []string {
	if req := a.p.Request.requestedBundle(); len(req) > 0 {
		return req
	}
	return a.p.ServiceProvider.AttributeBundle
}

// uuidGetter defers the per-service identity upsert until the encoder asks
// for the identifier.
func (a *Asserter) uuidGetter() Getter {
	userID := a.p.User.ID
	issuer := a.p.ServiceProvider.Issuer
	identities := a.p.Identities
	return func(ctx context.Context) (string, error) {
		identity, err := identities.FindOrCreate(ctx, userID, issuer)
		if err != nil {
			return "", err
		}
		return identity.UUID.String(), nil
	}
}

// memoizedPII wraps the provider so decryption runs at most once per Build
// result no matter how many attributes the encoder reads.
func (a *Asserter) memoizedPII() PIIProvider {
	provider := a.p.DecryptedPII
	var once sync.Once
	var pii model.PiiAttributes
	var err error
	return func(ctx context.Context) (model.PiiAttributes, error) {
		once.Do(func() {
			if provider == nil {
				err = fmt.Errorf("no pii provider: %w", errs.ErrPrecondition)
				return
			}
			pii, err = provider(ctx)
		})
		return pii, err
	}
}

func piiGetter(pii PIIProvider, attr Attribute) Getter {
	return func(ctx context.Context) (string, error) {
		p, err := pii(ctx)
		if err != nil {
			return "", err
		}
		return piiValue(p, attr), nil
	}
}

func piiValue(p model.PiiAttributes, attr Attribute) string {
	switch attr {
	case AttrFirstName:
		return p.FirstName
	case AttrMiddleName:
		return p.MiddleName
	case AttrLastName:
		return p.LastName
	case AttrAddress1:
		return p.Address1
	case AttrAddress2:
		return p.Address2
	case AttrCity:
		return p.City
	case AttrState:
		return p.State
	case AttrZipcode:
		return p.Zipcode
	case AttrDOB:
		return p.DOB
	case AttrSSN:
		return p.SSN
	case AttrPhone:
		return p.Phone
	default:
		return ""
	}
}

func containsAttr(bundle []string, attr Attribute) bool {
	for _, name := range bundle {
		if Attribute(name) == attr {
			return true
		}
	}
	return false
}
