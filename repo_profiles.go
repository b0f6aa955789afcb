package access

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Profiles is the repository behind the default ProfileStore implementation.
type Profiles interface {
	ProfileStore

	GetByIdentifier(ctx context.Context, identifier string) (*Profile, error)
	Create(ctx context.Context, record *Profile) (*Profile, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Profile) (*Profile, error)
	Upsert(ctx context.Context, record *Profile) (*Profile, error)
	UpsertTx(ctx context.Context, tx bun.IDB, record *Profile) (*Profile, error)
	SetActive(ctx context.Context, id string, active bool) error
	List(ctx context.Context) ([]*Profile, error)
}

type profiles struct {
	db *bun.DB
}

var _ Profiles = (*profiles)(nil)

// NewProfilesRepository returns the bun-backed Profiles repository.
func NewProfilesRepository(db *bun.DB) Profiles {
	return &profiles{db: db}
}

func (a *profiles) GetByID(ctx context.Context, id string) (*Profile, error) {
	return a.getWhere(ctx, "id", strings.TrimSpace(id))
}

func (a *profiles) GetByEmail(ctx context.Context, email string) (*Profile, error) {
	return a.getWhere(ctx, "email", normalizeEmail(email))
}

func (a *profiles) getWhere(ctx context.Context, column, value string) (*Profile, error) {
	return a.getWhereTx(ctx, a.db, column, value)
}

func (a *profiles) getWhereTx(ctx context.Context, tx bun.IDB, column, value string) (*Profile, error) {
	if value == "" {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{column: value})
	}

	record := &Profile{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias."+column+" = ?", value).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{column: value})
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read profile").
			WithMetadata(map[string]any{column: value})
	}

	return record, nil
}

// GetByIdentifier resolves a profile by id or email, whichever matches.
func (a *profiles) GetByIdentifier(ctx context.Context, identifier string) (*Profile, error) {
	trimmed := strings.TrimSpace(identifier)

	columns := []string{"email"}
	if !strings.Contains(trimmed, "@") {
		columns = []string{"id"}
	}

	for _, column := range columns {
		record, err := a.getWhere(ctx, column, trimmed)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				continue
			}
			return nil, err
		}
		return record, nil
	}

	return nil, repository.NewRecordNotFound().
		WithMetadata(map[string]any{"identifier": identifier})
}

// ReassignID rewrites the stored id in a single conditional update. The
// filter carries both the email and the id the caller observed; a row
// already holding newID satisfies the call without a write.
func (a *profiles) ReassignID(ctx context.Context, email, oldID, newID string) error {
	email = normalizeEmail(email)
	if email == "" || newID == "" {
		return goerrors.New("email and new id are required to reassign a profile id", goerrors.CategoryValidation).
			WithTextCode("INVALID_REASSIGNMENT")
	}

	now := time.Now()
	res, err := a.db.NewUpdate().
		Model((*Profile)(nil)).
		Set("id = ?", newID).
		Set("updated_at = ?", now).
		Where("?TableAlias.email = ?", email).
		Where("?TableAlias.id = ?", oldID).
		Exec(ctx)

	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to reassign profile id").
			WithMetadata(map[string]any{"email": email, "old_id": oldID, "new_id": newID})
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read reassignment result")
	}

	if affected > 0 {
		return nil
	}

	// no row matched: either an earlier run already repaired it (fine) or an
	// administrator changed the record in the interim (refuse)
	record, err := a.GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return repository.NewRecordNotFound().
				WithMetadata(map[string]any{"email": email})
		}
		return err
	}

	if record.ID == newID {
		return nil
	}

	return goerrors.New("profile changed concurrently, refusing to reassign id", goerrors.CategoryConflict).
		WithTextCode("REASSIGN_CONFLICT").
		WithCode(goerrors.CodeConflict).
		WithMetadata(map[string]any{
			"email":       email,
			"observed_id": oldID,
			"current_id":  record.ID,
		})
}

func (a *profiles) Create(ctx context.Context, record *Profile) (*Profile, error) {
	return a.CreateTx(ctx, a.db, record)
}

func (a *profiles) CreateTx(ctx context.Context, tx bun.IDB, record *Profile) (*Profile, error) {
	prepareProfileDefaults(record)

	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryConflict, "could not create profile").
			WithMetadata(map[string]any{"email": record.Email})
	}

	return record, nil
}

func (a *profiles) Upsert(ctx context.Context, record *Profile) (*Profile, error) {
	return a.UpsertTx(ctx, a.db, record)
}

func (a *profiles) UpsertTx(ctx context.Context, tx bun.IDB, record *Profile) (*Profile, error) {
	prepareProfileDefaults(record)

	// the read must go through tx: on a connection-limited pool a read
	// through the root db deadlocks against the connection tx holds
	existing, err := a.getWhereTx(ctx, tx, "email", normalizeEmail(record.Email))
	if err == nil {
		record.ID = existing.ID
		now := time.Now()
		record.UpdatedAt = &now
		if _, err := tx.NewUpdate().
			Model(record).
			WherePK().
			Exec(ctx); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not update profile").
				WithMetadata(map[string]any{"email": record.Email})
		}
		return record, nil
	}

	if !repository.IsRecordNotFound(err) {
		return nil, err
	}

	return a.CreateTx(ctx, tx, record)
}

func (a *profiles) SetActive(ctx context.Context, id string, active bool) error {
	now := time.Now()
	res, err := a.db.NewUpdate().
		Model((*Profile)(nil)).
		Set("is_active = ?", active).
		Set("updated_at = ?", now).
		Where("?TableAlias.id = ?", id).
		Exec(ctx)

	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update profile active flag").
			WithMetadata(map[string]any{"id": id})
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read active flag result")
	}
	if affected == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id})
	}

	return nil
}

func (a *profiles) List(ctx context.Context) ([]*Profile, error) {
	var records []*Profile
	if err := a.db.NewSelect().
		Model(&records).
		Order("email ASC").
		Scan(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list profiles")
	}
	return records, nil
}

func prepareProfileDefaults(record *Profile) {
	if record == nil {
		return
	}

	record.Email = normalizeEmail(record.Email)

	if record.Role == "" {
		record.Role = RoleUser
	}

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
