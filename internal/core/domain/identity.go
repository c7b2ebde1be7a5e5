package domain

import (
	"encoding/json"
	"fmt"
)

// Identity is the authenticated principal as served by GET /users/me.
type Identity struct {
	ID       int64  `json:"id"`
	Role     Role   `json:"role"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Address  string `json:"address,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// UnmarshalJSON also accepts the lower-case "imageurl" key the clinic API
// emits. A payload without a known role is rejected.
func (i *Identity) UnmarshalJSON(b []byte) error {
	type plain Identity
	aux := struct {
		*plain
		LegacyImageURL string `json:"imageurl"`
	}{plain: (*plain)(i)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if !i.Role.Valid() {
		return fmt.Errorf("identity %d: %w: %q", i.ID, ErrUnknownRole, i.Role)
	}
	if i.ImageURL == "" {
		i.ImageURL = aux.LegacyImageURL
	}
	return nil
}

// Clone returns a detached copy, nil-safe.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

// ProfileUpdate carries the editable profile attributes.
type ProfileUpdate struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	RG       string `json:"rg,omitempty"`
}
