// Package directory authenticates users of the demo server against the
// configured user list and licence.
package directory

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/docfeed/dslisten/internal/config"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrAuthentication = errors.New("invalid credentials")
	ErrInvalidLicense = errors.New("license invalid")
)

// dummyHash is compared against when the user does not exist so that
// unknown and known users take the same time to reject.
var dummyHash = sync.OnceValue(func() []byte {
	h, _ := bcrypt.GenerateFromPassword([]byte("dslisten-dummy"), bcrypt.MinCost)
	return h
})

type entry struct {
	user   config.User
	domain string // canonical domain of user
}

type userKey struct {
	domain string
	name   string
}

func keyFor(domain, name string) userKey {
	return userKey{domain: strings.ToLower(domain), name: strings.ToLower(name)}
}

// Directory is safe for concurrent use. Reload swaps its contents.
type Directory struct {
	mu      sync.RWMutex
	domain  string
	users   map[userKey]entry
	license config.License
	now     func() time.Time
}

func New(cfg *config.Config) *Directory {
	d := &Directory{now: time.Now}
	d.Reload(cfg)
	return d
}

// Reload replaces the users, licence and default domain.
func (d *Directory) Reload(cfg *config.Config) {
	users := make(map[userKey]entry, len(cfg.Users))
	for _, u := range cfg.Users {
		domain := cfg.UserDomain(u)
		users[keyFor(domain, u.Name)] = entry{user: u, domain: domain}
	}
	d.mu.Lock()
	d.domain = cfg.Domain
	d.users = users
	d.license = cfg.License
	d.mu.Unlock()
}

// DefaultDomain returns the domain used when a login names none.
func (d *Directory) DefaultDomain() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.domain
}

// Seats returns the licensed number of concurrent sessions, 0 for no limit.
func (d *Directory) Seats() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.license.Seats
}

// UserCount returns the number of configured users.
func (d *Directory) UserCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users)
}

// CheckLicense reports whether another session may be opened while
// active sessions are already open.
func (d *Directory) CheckLicense(active int) error {
	d.mu.RLock()
	lic := d.license
	d.mu.RUnlock()

	if !lic.Expires.IsZero() && !d.now().Before(lic.Expires) {
		return fmt.Errorf("%w: expired %s", ErrInvalidLicense, lic.Expires.Format(time.DateOnly))
	}
	if lic.Seats > 0 && active >= lic.Seats {
		return fmt.Errorf("%w: all %d seats in use", ErrInvalidLicense, lic.Seats)
	}
	return nil
}

// Authenticate checks the licence, then the credentials. It returns the
// canonical user name and domain.
func (d *Directory) Authenticate(domain, name, password string, active int) (string, string, error) {
	if err := d.CheckLicense(active); err != nil {
		return "", "", err
	}

	d.mu.RLock()
	if domain == "" {
		domain = d.domain
	}
	e, ok := d.users[keyFor(domain, name)]
	d.mu.RUnlock()

	if !ok || e.user.Disabled {
		bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
		return "", "", ErrAuthentication
	}
	if err := bcrypt.CompareHashAndPassword([]byte(e.user.PasswordHash), []byte(password)); err != nil {
		return "", "", ErrAuthentication
	}
	return e.user.Name, e.domain, nil
}

// HashPassword returns a bcrypt hash suitable for a password_hash entry.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
