package workflow

import (
	"slices"

	"github.com/dmitrijs2005/biru/internal/client/models"
	"github.com/dmitrijs2005/biru/internal/common"
)

type ServerStatus int

const (
	ServerIdle ServerStatus = iota
	// ServerInvalid is a malformed hostname: nothing is looked up and no
	// error is shown.
	ServerInvalid
	ServerLookingUp
	ServerFound
	ServerNotFound
)

func (s ServerStatus) String() string {
	switch s {
	case ServerInvalid:
		return "invalid"
	case ServerLookingUp:
		return "looking up"
	case ServerFound:
		return "found"
	case ServerNotFound:
		return "not found"
	default:
		return "idle"
	}
}

type LoginStatus int

const (
	LoginIdle LoginStatus = iota
	LoggingIn
	Authenticated
	LoginFailed
)

func (s LoginStatus) String() string {
	switch s {
	case LoggingIn:
		return "logging in"
	case Authenticated:
		return "authenticated"
	case LoginFailed:
		return "failed"
	default:
		return "idle"
	}
}

// LoginState is the login form. The password itself never leaves the
// controller.
type LoginState struct {
	Server       string
	ServerStatus ServerStatus
	Descriptor   *models.ServerDescriptor
	Identifier   string
	HasPassword  bool
	Status       LoginStatus
	Err          error
}

// CanLogin reports whether the login action is enabled.
func (s LoginState) CanLogin() bool {
	return s.Identifier != "" && s.HasPassword && s.ServerStatus == ServerFound && s.Status != LoggingIn
}

type CheckStatus int

const (
	// CheckIdle means "not checking": one of the fields is empty.
	CheckIdle CheckStatus = iota
	CheckPending
	Checking
	CheckDone
	CheckFailed
)

// RegistrationState is the handle registration form plus the user's list.
type RegistrationState struct {
	Registrations []models.Registration
	Domains       []models.Domain

	Pair         models.Pair
	CheckStatus  CheckStatus
	Availability *models.Availability

	Confirmed   bool
	SetPrimary  bool
	Registering bool

	// InFlightOp/InFlightID describe the pending switch or release, if any.
	InFlightOp string
	InFlightID string

	Err error
}

// FormVisible is false once the user holds the maximum number of handles.
func (s RegistrationState) FormVisible() bool {
	return len(s.Registrations) < common.MaxUsernames
}

// Available reports a positive answer for exactly the current pair.
func (s RegistrationState) Available() bool {
	return s.Availability != nil && s.Availability.Pair == s.Pair && s.Availability.Available
}

// CanRegister reports whether the register action is enabled.
func (s RegistrationState) CanRegister() bool {
	return s.FormVisible() &&
		s.Pair.Complete() &&
		s.Available() &&
		s.Confirmed &&
		!s.Registering &&
		s.CheckStatus != Checking
}

// Busy reports whether a switch or release is pending.
func (s RegistrationState) Busy() bool {
	return s.InFlightOp != ""
}

// Owner returns ownership metadata for the current domain: from the latest
// check when there is one, otherwise from the domain list.
func (s RegistrationState) Owner() *models.DomainOwner {
	if s.Availability != nil && s.Availability.Pair == s.Pair && s.Availability.Owner != nil {
		return s.Availability.Owner
	}
	for _, d := range s.Domains {
		if d.Name == s.Pair.Domain {
			return d.Owner
		}
	}
	return nil
}

func (s RegistrationState) OwnerBadge() models.OwnerBadge {
	return s.Owner().Badge()
}

// Snapshot is an immutable copy of the controller state.
type Snapshot struct {
	Login        LoginState
	Registration RegistrationState
	User         *models.Profile
}

func (s Snapshot) LoggedIn() bool {
	return s.Login.Status == Authenticated
}

func (s Snapshot) clone() Snapshot {
	s.Registration.Registrations = slices.Clone(s.Registration.Registrations)
	s.Registration.Domains = slices.Clone(s.Registration.Domains)
	if s.Registration.Availability != nil {
		a := *s.Registration.Availability
		s.Registration.Availability = &a
	}
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}
