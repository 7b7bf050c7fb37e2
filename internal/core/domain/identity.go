package domain

// Identity is the stable string used to address a connected user for
// relay and presence purposes.
type Identity string

// IdentityRecord is the presence metadata for a connected user. One record
// exists per distinct identity, exactly as long as a live signaling
// connection for that identity is registered.
type IdentityRecord struct {
	ID     Identity `json:"id"`
	Name   string   `json:"name"`
	Avatar string   `json:"avatar"`
	Online bool     `json:"online"`
}
