package services

import (
	"time"

	"github.com/PulseMetrics/pulsetrack-go/internal/domain/events"
	"github.com/PulseMetrics/pulsetrack-go/internal/domain/user"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/observability/logging"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/observability/metrics"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/security"
)

// IdentityService links anonymous visitors to leads. PII is encrypted the
// moment it arrives; all lookups run on keyed fingerprints, so plaintext
// never reaches a repository or a log line.
type IdentityService struct {
	logger *logging.ChanneledLogger
}

// NewIdentityService creates a new identity service
func NewIdentityService(logger *logging.ChanneledLogger) *IdentityService {
	return &IdentityService{logger: logger}
}

// IdentifyRequest carries one identify call. At least one of Email or Phone
// must be present.
type IdentifyRequest struct {
	WorkspaceID string
	AnonymousID string
	Email       string
	Phone       string
}

// IdentifyResult is the outcome of a successful identify call.
type IdentifyResult struct {
	Profile *user.Profile `json:"profile"`
	Token   string        `json:"token,omitempty"`
	Created bool          `json:"created"`
}

// Identify encrypts the submitted PII, resolves or creates the lead it
// belongs to, and links the visitor. Matching is by email fingerprint first,
// phone fingerprint second. Encryption failure aborts the whole call: a
// lead must never be persisted with readable PII as a fallback.
func (s *IdentityService) Identify(deps *Deps, req *IdentifyRequest, now time.Time) (*IdentifyResult, error) {
	if err := events.ValidateAnonymousID(req.AnonymousID); err != nil {
		return nil, err
	}

	email := security.NormalizeEmail(req.Email)
	phone := security.NormalizePhone(req.Phone)
	if email == "" && phone == "" {
		metrics.IdentifyCalls.WithLabelValues(deps.TenantID, "rejected").Inc()
		return nil, &events.ValidationError{Code: events.CodeProcessingFailed, Message: "identify requires an email or phone"}
	}

	var emailCipher, emailFP, phoneCipher, phoneFP string
	var emailVer, phoneVer int
	var err error

	if email != "" {
		emailCipher, emailVer, err = deps.Codec.EncryptPII(email)
		if err == nil {
			emailFP, err = deps.Fingerprinter.Email(email)
		}
		if err != nil {
			metrics.IdentifyCalls.WithLabelValues(deps.TenantID, "failed").Inc()
			if s.logger != nil {
				s.logger.Identity().Error("Email protection failed", "tenantId", deps.TenantID, "error", err.Error())
			}
			return nil, &events.ValidationError{Code: events.CodeProcessingFailed, Message: "email could not be protected"}
		}
	}
	if phone != "" {
		phoneCipher, phoneVer, err = deps.Codec.EncryptPII(phone)
		if err == nil {
			phoneFP, err = deps.Fingerprinter.Phone(phone)
		}
		if err != nil {
			metrics.IdentifyCalls.WithLabelValues(deps.TenantID, "failed").Inc()
			if s.logger != nil {
				s.logger.Identity().Error("Phone protection failed", "tenantId", deps.TenantID, "error", err.Error())
			}
			return nil, &events.ValidationError{Code: events.CodeProcessingFailed, Message: "phone could not be protected"}
		}
	}

	lead, err := s.resolveLead(deps, req.WorkspaceID, emailFP, phoneFP)
	if err != nil {
		return nil, err
	}

	created := false
	if lead == nil {
		lead = &user.Lead{
			ID:               security.GenerateULID(),
			WorkspaceID:      req.WorkspaceID,
			EmailCiphertext:  emailCipher,
			EmailFingerprint: emailFP,
			EmailKeyVersion:  emailVer,
			PhoneCiphertext:  phoneCipher,
			PhoneFingerprint: phoneFP,
			PhoneKeyVersion:  phoneVer,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := deps.Leads.Store(lead); err != nil {
			return nil, err
		}
		created = true
	} else if s.fillMissing(lead, emailCipher, emailFP, emailVer, phoneCipher, phoneFP, phoneVer) {
		lead.UpdatedAt = now
		if err := deps.Leads.Update(lead); err != nil {
			return nil, err
		}
	}

	link := &user.IdentityLink{
		WorkspaceID:   req.WorkspaceID,
		AnonymousID:   req.AnonymousID,
		LeadID:        lead.ID,
		FirstLinkedAt: now,
		LastLinkedAt:  now,
	}
	if existing, err := deps.Links.Find(req.WorkspaceID, req.AnonymousID, lead.ID); err != nil {
		return nil, err
	} else if existing != nil {
		link.FirstLinkedAt = existing.FirstLinkedAt
	}
	if err := deps.Links.Upsert(link); err != nil {
		return nil, err
	}
	deps.Cache.SetCurrentLink(deps.TenantID, link)

	profile := &user.Profile{
		AnonymousID: req.AnonymousID,
		LeadID:      lead.ID,
		HasEmail:    lead.EmailFingerprint != "",
		HasPhone:    lead.PhoneFingerprint != "",
	}

	token, err := security.GenerateProfileToken(profile, deps.JWTSecret)
	if err != nil {
		// The link is already durable; a token failure degrades the
		// response, not the identification.
		token = ""
		if s.logger != nil {
			s.logger.Identity().Warn("Profile token generation failed", "tenantId", deps.TenantID, "error", err.Error())
		}
	}

	outcome := "linked"
	if created {
		outcome = "created"
	}
	metrics.IdentifyCalls.WithLabelValues(deps.TenantID, outcome).Inc()

	if s.logger != nil {
		s.logger.Identity().Info("Visitor identified",
			"tenantId", deps.TenantID,
			"anonymousId", logging.SanitizeID(req.AnonymousID),
			"leadId", lead.ID,
			"created", created)
	}

	return &IdentifyResult{Profile: profile, Token: token, Created: created}, nil
}

// resolveLead finds an existing lead by email fingerprint, then phone
// fingerprint. Email wins when both match different leads.
func (s *IdentityService) resolveLead(deps *Deps, workspaceID, emailFP, phoneFP string) (*user.Lead, error) {
	if emailFP != "" {
		lead, err := deps.Leads.FindByEmailFingerprint(workspaceID, emailFP)
		if err != nil {
			return nil, err
		}
		if lead != nil {
			return lead, nil
		}
	}
	if phoneFP != "" {
		return deps.Leads.FindByPhoneFingerprint(workspaceID, phoneFP)
	}
	return nil, nil
}

// fillMissing adds newly supplied PII fields to an existing lead without
// overwriting ones it already carries. Each field records the key version it
// was encrypted under, so leads created before a rotation stay decryptable.
// Reports whether anything changed.
func (s *IdentityService) fillMissing(lead *user.Lead, emailCipher, emailFP string, emailVer int, phoneCipher, phoneFP string, phoneVer int) bool {
	changed := false
	if lead.EmailFingerprint == "" && emailFP != "" {
		lead.EmailCiphertext = emailCipher
		lead.EmailFingerprint = emailFP
		lead.EmailKeyVersion = emailVer
		changed = true
	}
	if lead.PhoneFingerprint == "" && phoneFP != "" {
		lead.PhoneCiphertext = phoneCipher
		lead.PhoneFingerprint = phoneFP
		lead.PhoneKeyVersion = phoneVer
		changed = true
	}
	return changed
}

// CurrentProfile returns the profile for a visitor's current identity link,
// or nil when the visitor is anonymous.
func (s *IdentityService) CurrentProfile(deps *Deps, workspaceID, anonymousID string) (*user.Profile, error) {
	link, found := deps.Cache.GetCurrentLink(deps.TenantID, workspaceID, anonymousID)
	if !found {
		var err error
		link, err = deps.Links.FindCurrentByAnonymousID(workspaceID, anonymousID)
		if err != nil {
			return nil, err
		}
		if link != nil {
			deps.Cache.SetCurrentLink(deps.TenantID, link)
		}
	}
	if link == nil {
		return nil, nil
	}

	lead, err := deps.Leads.FindByID(link.LeadID)
	if err != nil {
		return nil, err
	}
	if lead == nil {
		return nil, nil
	}
	return &user.Profile{
		AnonymousID: anonymousID,
		LeadID:      lead.ID,
		HasEmail:    lead.EmailFingerprint != "",
		HasPhone:    lead.PhoneFingerprint != "",
	}, nil
}
