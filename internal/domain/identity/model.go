package identity

import "strings"

// Kind distinguishes the three identity states.
type Kind int

const (
	KindAnonymous Kind = iota
	KindGuest
	KindAuthenticated
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindGuest:
		return "guest"
	case KindAuthenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// Metadata holds the optional profile hints stored with a backend user.
type Metadata struct {
	FullName string `json:"full_name,omitempty"`
	Gender   string `json:"gender,omitempty"`
	DOB      string `json:"dob,omitempty"`
}

// User is a signed-in backend user.
type User struct {
	ID          string
	Email       string
	DisplayName string
	Metadata    Metadata
}

// NewUser builds a User, deriving DisplayName from metadata or the e-mail local part.
// PRE: id is non-empty
// POST: DisplayName is non-empty when either FullName or Email is set
func NewUser(id, email string, meta Metadata) User {
	name := strings.TrimSpace(meta.FullName)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	return User{ID: id, Email: email, DisplayName: name, Metadata: meta}
}

// Identity is the current visitor's authentication state.
// INVARIANT: User is non-nil iff Kind == KindAuthenticated
type Identity struct {
	Kind Kind
	User *User
}

// Anonymous returns the no-session, no-guest identity.
func Anonymous() Identity { return Identity{Kind: KindAnonymous} }

// Guest returns the locally flagged guest identity.
func Guest() Identity { return Identity{Kind: KindGuest} }

// Authenticated returns an identity for the given user.
func Authenticated(u User) Identity {
	return Identity{Kind: KindAuthenticated, User: &u}
}

// IsGuest reports whether the visitor is browsing as a guest.
func (i Identity) IsGuest() bool { return i.Kind == KindGuest }

// IsAuthenticated reports whether the visitor has a backend session.
func (i Identity) IsAuthenticated() bool { return i.Kind == KindAuthenticated && i.User != nil }

// UserID returns the signed-in user's id, or "" otherwise.
func (i Identity) UserID() string {
	if !i.IsAuthenticated() {
		return ""
	}
	return i.User.ID
}
