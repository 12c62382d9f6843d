package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/biru/internal/client/client"
	"github.com/dmitrijs2005/biru/internal/client/models"
	"github.com/dmitrijs2005/biru/internal/client/repositories/registrations"
	"github.com/dmitrijs2005/biru/internal/common"
	"github.com/dmitrijs2005/biru/internal/dbx"
	"github.com/dmitrijs2005/biru/internal/logging"
)

// Registry is the subset of the handle backend client the services need.
type Registry interface {
	List(ctx context.Context, creds models.Credentials) ([]models.Registration, error)
	Domains(ctx context.Context, creds models.Credentials) ([]models.Domain, error)
	Check(ctx context.Context, creds models.Credentials, pair models.Pair) (*models.Availability, error)
	Register(ctx context.Context, creds models.Credentials, pair models.Pair, setPrimary bool) error
	Switch(ctx context.Context, creds models.Credentials, id string) error
	Release(ctx context.Context, creds models.Credentials, id string) error
}

// HandleService covers the handle registration calls. Workflow guards
// (confirmation, capacity, single-flight) live in the workflow controller.
type HandleService interface {
	// ListRegistrations fetches the list and refreshes the local cache. When
	// the backend fails it returns the cached list together with the error.
	ListRegistrations(ctx context.Context) ([]models.Registration, error)
	Domains(ctx context.Context) ([]models.Domain, error)
	CheckAvailability(ctx context.Context, pair models.Pair) (*models.Availability, error)
	Register(ctx context.Context, pair models.Pair, setPrimary bool) error
	SwitchPrimary(ctx context.Context, id string) error
	Release(ctx context.Context, id string) error
}

type handleService struct {
	auth     AuthService
	registry Registry
	db       *sql.DB
	log      logging.Logger
}

func NewHandleService(auth AuthService, registry Registry, db *sql.DB, log logging.Logger) HandleService {
	return &handleService{auth: auth, registry: registry, db: db, log: log}
}

func (s *handleService) ListRegistrations(ctx context.Context) ([]models.Registration, error) {
	var regs []models.Registration
	err := s.auth.Authorized(ctx, func(ctx context.Context, creds models.Credentials) error {
		var err error
		regs, err = s.registry.List(ctx, creds)
		return err
	})
	did := s.auth.Credentials().DID

	if err != nil {
		if errors.Is(err, common.ErrNoSession) {
			return nil, err
		}
		cached, cerr := registrations.NewSQLiteRepository(s.db).List(ctx, did)
		if cerr != nil {
			s.log.Warn(ctx, "registration cache read failed", "error", cerr)
		}
		return cached, fmt.Errorf("list registrations error: %w", err)
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return registrations.NewSQLiteRepository(tx).Replace(ctx, did, regs)
	})
	if err != nil {
		s.log.Warn(ctx, "registration cache write failed", "error", err)
	}
	return regs, nil
}

func (s *handleService) Domains(ctx context.Context) ([]models.Domain, error) {
	var out []models.Domain
	err := s.auth.Authorized(ctx, func(ctx context.Context, creds models.Credentials) error {
		var err error
		out, err = s.registry.Domains(ctx, creds)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list domains error: %w", err)
	}
	return out, nil
}

// CheckAvailability answers for exactly pair; the result carries pair as its
// tag.
func (s *handleService) CheckAvailability(ctx context.Context, pair models.Pair) (*models.Availability, error) {
	if !pair.Complete() {
		return nil, common.NewValidationError("handle", "subdomain and domain are required")
	}

	var out *models.Availability
	err := s.auth.Authorized(ctx, func(ctx context.Context, creds models.Credentials) error {
		var err error
		out, err = s.registry.Check(ctx, creds, pair)
		return err
	})
	if err != nil {
		if errors.Is(err, client.ErrUnavailable) {
			return nil, fmt.Errorf("%w: %w", common.ErrNetwork, err)
		}
		return nil, err
	}
	return out, nil
}

func (s *handleService) Register(ctx context.Context, pair models.Pair, setPrimary bool) error {
	if !pair.Complete() {
		return common.NewValidationError("handle", "subdomain and domain are required")
	}

	err := s.auth.Authorized(ctx, func(ctx context.Context, creds models.Credentials) error {
		return s.registry.Register(ctx, creds, pair, setPrimary)
	})
	if err != nil {
		s.log.Warn(ctx, "register failed", "handle", pair.Handle(), "error", err)
		return &common.OperationError{Op: "register", Err: err}
	}
	s.log.Info(ctx, "registered", "handle", pair.Handle(), "primary", setPrimary)
	return nil
}

// SwitchPrimary makes id primary; common.DefaultHandleID restores the
// server-issued handle.
func (s *handleService) SwitchPrimary(ctx context.Context, id string) error {
	err := s.auth.Authorized(ctx, func(ctx context.Context, creds models.Credentials) error {
		return s.registry.Switch(ctx, creds, id)
	})
	if err != nil {
		s.log.Warn(ctx, "switch failed", "id", id, "error", err)
		return &common.OperationError{Op: "switch", Err: err}
	}
	s.log.Info(ctx, "switched primary handle", "id", id)
	return nil
}

func (s *handleService) Release(ctx context.Context, id string) error {
	err := s.auth.Authorized(ctx, func(ctx context.Context, creds models.Credentials) error {
		return s.registry.Release(ctx, creds, id)
	})
	if err != nil {
		s.log.Warn(ctx, "release failed", "id", id, "error", err)
		return &common.OperationError{Op: "release", Err: err}
	}

	if err := registrations.NewSQLiteRepository(s.db).Delete(ctx, s.auth.Credentials().DID, id); err != nil {
		s.log.Warn(ctx, "registration cache delete failed", "error", err)
	}
	s.log.Info(ctx, "released", "id", id)
	return nil
}
