package patient

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ScopeLocker serializes a duplicate check and the write that follows it
// against everything else touching the same doctor's records. Implemented
// by db.ScopeLocker with a transaction and an advisory lock.
type ScopeLocker interface {
	WithinScope(ctx context.Context, scope string, fn func(ctx context.Context) error) error
}

type Service struct {
	repo PatientRepository
	lock ScopeLocker
}

func NewService(repo PatientRepository, lock ScopeLocker) *Service {
	return &Service{repo: repo, lock: lock}
}

// ResolveInput is one duplicate-check request. ExcludeID names the record
// being edited so a re-save never collides with itself.
type ResolveInput struct {
	DoctorID  uuid.UUID
	FullName  string
	Phone     string
	ExcludeID *uuid.UUID
}

// Resolve checks an incoming (name, phone) pair against one doctor's
// records and reports whether a write would collide. Read-only; the store
// is never touched.
func (s *Service) Resolve(ctx context.Context, in ResolveInput) (Verdict, error) {
	ident := NormalizeIdentity(in.FullName, in.Phone)
	if ident.Name == "" {
		return Verdict{}, ErrNameRequired
	}
	if in.DoctorID == uuid.Nil {
		return Verdict{}, ErrDoctorRequired
	}

	pool, err := s.repo.ListCandidates(ctx, in.DoctorID, in.ExcludeID)
	if err != nil {
		return Verdict{}, fmt.Errorf("list candidates: %w", err)
	}

	match, matches := findMatch(ident, pool, in.ExcludeID)
	if match == nil {
		return Verdict{Outcome: MatchNone}, nil
	}
	if matches > 1 {
		// The write paths keep this state from arising; seeing it means
		// the data predates them or was changed out of band.
		log.Warn().
			Str("doctor_id", in.DoctorID.String()).
			Str("name_norm", ident.Name).
			Int("candidates", matches).
			Msg("identity matches more than one record")
	}
	return Verdict{Outcome: MatchBlock, Existing: match}, nil
}

// Create inserts a record once the duplicate check clears. Check and
// insert run as one unit under the owner's scope lock, so two concurrent
// creates for the same doctor cannot both pass.
func (s *Service) Create(ctx context.Context, p *Patient) error {
	if NormalizeName(p.FullName) == "" {
		return ErrNameRequired
	}
	if p.DoctorID == uuid.Nil {
		return ErrDoctorRequired
	}
	return s.lock.WithinScope(ctx, p.DoctorID.String(), func(ctx context.Context) error {
		verdict, err := s.Resolve(ctx, ResolveInput{
			DoctorID: p.DoctorID,
			FullName: p.FullName,
			Phone:    strVal(p.Phone),
		})
		if err != nil {
			return err
		}
		if verdict.Outcome == MatchBlock {
			return &DuplicateError{Existing: verdict.Existing}
		}
		return s.repo.Create(ctx, p)
	})
}

// Update rewrites a record's demographics. The duplicate check excludes
// the record itself, so re-saving unchanged fields never blocks. The
// owning doctor never changes.
func (s *Service) Update(ctx context.Context, p *Patient) error {
	if NormalizeName(p.FullName) == "" {
		return ErrNameRequired
	}
	if p.DoctorID == uuid.Nil {
		return ErrDoctorRequired
	}
	return s.lock.WithinScope(ctx, p.DoctorID.String(), func(ctx context.Context) error {
		verdict, err := s.Resolve(ctx, ResolveInput{
			DoctorID:  p.DoctorID,
			FullName:  p.FullName,
			Phone:     strVal(p.Phone),
			ExcludeID: &p.ID,
		})
		if err != nil {
			return err
		}
		if verdict.Outcome == MatchBlock {
			return &DuplicateError{Existing: verdict.Existing}
		}
		return s.repo.Update(ctx, p)
	})
}

// Get loads one record. A non-nil scope restricts access to that doctor's
// records; anything outside it reads as not found.
func (s *Service) Get(ctx context.Context, id, scope uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if scope != uuid.Nil && p.DoctorID != scope {
		return nil, ErrNotFound
	}
	return p, nil
}

// Delete removes a record along with its visits and diagnoses.
func (s *Service) Delete(ctx context.Context, id, scope uuid.UUID) error {
	if _, err := s.Get(ctx, id, scope); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// List returns the records a user works with: the doctor's own plus any
// the user has created visits for. An optional q filters on a name or
// phone substring.
func (s *Service) List(ctx context.Context, doctorID, userID uuid.UUID, q string, limit, offset int) ([]*Patient, int, error) {
	if doctorID == uuid.Nil {
		return nil, 0, ErrDoctorRequired
	}
	return s.repo.ListAccessible(ctx, doctorID, userID, q, limit, offset)
}
