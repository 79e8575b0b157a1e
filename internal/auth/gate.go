package auth

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Gate checks partner credentials: HTTP Basic accounts backed by bcrypt
// hashes, X-API-Key values, or both. When both are configured a presented
// API key is checked first.
type Gate struct {
	mode     Mode
	accounts map[string]string // username -> bcrypt hash
	keys     map[string]string // key -> partner name
}

// New builds the gate for mode from the "user:bcrypt-hash,..." and
// "key:partner,..." lists. ModeNone returns a nil Authenticator, leaving the
// API open. ModeMulti accepts whichever lists are non-empty.
func New(mode Mode, basicUsers, apiKeys string) (Authenticator, error) {
	g := &Gate{mode: mode}

	var err error
	switch mode {
	case ModeNone, "":
		return nil, nil
	case ModeBasic:
		if g.accounts, err = parseAccessList(basicUsers, "basic users"); err != nil {
			return nil, err
		}
	case ModeAPIKey:
		if g.keys, err = parseAccessList(apiKeys, "API keys"); err != nil {
			return nil, err
		}
	case ModeMulti:
		if strings.TrimSpace(basicUsers) == "" && strings.TrimSpace(apiKeys) == "" {
			return nil, fmt.Errorf("%w: multi mode needs basic users or API keys", ErrEmptyAccessList)
		}
		if strings.TrimSpace(basicUsers) != "" {
			if g.accounts, err = parseAccessList(basicUsers, "basic users"); err != nil {
				return nil, err
			}
		}
		if strings.TrimSpace(apiKeys) != "" {
			if g.keys, err = parseAccessList(apiKeys, "API keys"); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMode, mode)
	}

	return g, nil
}

// parseAccessList splits "a:b,c:d" on the first colon of each entry. bcrypt
// hashes never contain a colon.
func parseAccessList(list, what string) (map[string]string, error) {
	entries := make(map[string]string)
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		left, right, ok := strings.Cut(entry, ":")
		left, right = strings.TrimSpace(left), strings.TrimSpace(right)
		if !ok || left == "" || right == "" {
			return nil, fmt.Errorf("%s: malformed entry %q", what, redact(entry))
		}
		entries[left] = right
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyAccessList, what)
	}
	return entries, nil
}

// redact keeps error messages from echoing a secret.
func redact(entry string) string {
	if len(entry) <= 4 {
		return "****"
	}
	return entry[:4] + "****"
}

// Authenticate admits the partner behind r.
func (g *Gate) Authenticate(r *http.Request) (*Client, error) {
	if key := r.Header.Get(APIKeyHeader); key != "" && g.keys != nil {
		return g.byKey(key)
	}
	if user, password, ok := r.BasicAuth(); ok && g.accounts != nil {
		return g.byPassword(user, password)
	}
	return nil, ErrNoCredentials
}

// byKey compares against every key in constant time.
func (g *Gate) byKey(presented string) (*Client, error) {
	for key, partner := range g.keys {
		if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) == 1 {
			return &Client{Name: partner, Via: ModeAPIKey}, nil
		}
	}
	return nil, ErrUnknownKey
}

func (g *Gate) byPassword(user, password string) (*Client, error) {
	hash, ok := g.accounts[user]
	if !ok {
		return nil, ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, ErrBadCredentials
	}
	return &Client{Name: user, Via: ModeBasic}, nil
}

// Mode returns the configured mode.
func (g *Gate) Mode() Mode {
	return g.mode
}

// Challenge lists the schemes the gate accepts.
func (g *Gate) Challenge() string {
	var schemes []string
	if g.accounts != nil {
		schemes = append(schemes, `Basic realm="flexishop-api"`)
	}
	if g.keys != nil {
		schemes = append(schemes, `API-Key header="`+APIKeyHeader+`"`)
	}
	return strings.Join(schemes, ", ")
}
