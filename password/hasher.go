package password

// Hasher is the credential verifier used by the engine. New hashes are always
// Argon2id; bcrypt hashes are accepted for verification and reported as
// needing an upgrade.
type Hasher struct {
	argon  *Argon2
	legacy Legacy
}

// NewHasher builds a Hasher from Argon2id parameters.
func NewHasher(cfg Config) (*Hasher, error) {
	a, err := NewArgon2(cfg)
	if err != nil {
		return nil, err
	}
	return &Hasher{argon: a}, nil
}

// Hash returns a fresh Argon2id PHC string.
func (h *Hasher) Hash(password string) (string, error) {
	return h.argon.Hash(password)
}

// Verify reports whether password matches encodedHash. Empty, unknown or
// malformed hashes verify as false.
func (h *Hasher) Verify(password, encodedHash string) bool {
	var (
		ok  bool
		err error
	)
	switch {
	case isArgon2Hash(encodedHash):
		ok, err = h.argon.Verify(password, encodedHash)
	case isBcryptHash(encodedHash):
		ok, err = h.legacy.Verify(password, encodedHash)
	default:
		return false
	}
	return err == nil && ok
}

// NeedsRehash reports whether a hash that just verified should be replaced.
func (h *Hasher) NeedsRehash(encodedHash string) bool {
	if isBcryptHash(encodedHash) {
		return true
	}
	upgrade, err := h.argon.NeedsUpgrade(encodedHash)
	return err == nil && upgrade
}
