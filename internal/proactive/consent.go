package proactive

import "sync"

// DefaultFrequencyCap is the per-day cap of a recipient without explicit
// consent settings.
const DefaultFrequencyCap = 1

// Consent is a recipient's outreach consent within a tenant.
type Consent struct {
	TenantID           string `json:"tenant_id"`
	Name               string `json:"name"`
	OptedIn            bool   `json:"opted_in"`
	FrequencyCapPerDay int    `json:"frequency_cap_per_day"`
}

type consentKey struct {
	tenantID string
	name     string
}

// ConsentStore keeps consent per (tenant, name).
type ConsentStore struct {
	mu     sync.RWMutex
	states map[consentKey]Consent
}

// NewConsentStore creates an empty store.
func NewConsentStore() *ConsentStore {
	return &ConsentStore{states: make(map[consentKey]Consent)}
}

// Set records consent. The cap is stored as given: a cap of 0 keeps an
// opted-in recipient from ever being contacted. Negative caps count as 0.
func (s *ConsentStore) Set(tenantID, name string, optedIn bool, capPerDay int) Consent {
	capPerDay = max(capPerDay, 0)
	c := Consent{TenantID: tenantID, Name: name, OptedIn: optedIn, FrequencyCapPerDay: capPerDay}
	s.mu.Lock()
	s.states[consentKey{tenantID, name}] = c
	s.mu.Unlock()
	return c
}

// Get returns the recorded consent, or not-opted-in with the default cap.
func (s *ConsentStore) Get(tenantID, name string) Consent {
	s.mu.RLock()
	c, ok := s.states[consentKey{tenantID, name}]
	s.mu.RUnlock()
	if !ok {
		return Consent{TenantID: tenantID, Name: name, FrequencyCapPerDay: DefaultFrequencyCap}
	}
	return c
}
