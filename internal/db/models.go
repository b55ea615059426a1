package db

import "time"

// Organisation is a tenant.
type Organisation struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ProviderApp is one WhatsApp app registered with a provider on behalf of an
// organisation. EncryptedToken is stored in enc:v1 form and decrypted per job.
type ProviderApp struct {
	AppID          string    `json:"app_id"`
	OrgID          string    `json:"org_id"`
	ProviderName   string    `json:"provider_name"`
	EncryptedToken string    `json:"-"`
	PhoneNumber    string    `json:"phone_number,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Provider names
const (
	ProviderGupshup = "gupshup"
)
