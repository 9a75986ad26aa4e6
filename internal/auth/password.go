package auth

import "golang.org/x/crypto/bcrypt"

// HashPassword derives a salted bcrypt hash of the plain password. Hashing
// is deliberately expensive; cost comes from config.
func (s *Service) HashPassword(plain string) (string, error) {
	cost := s.cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// VerifyPassword reports whether plain matches the stored hash. The
// comparison runs through bcrypt's own verify routine.
func (s *Service) VerifyPassword(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
