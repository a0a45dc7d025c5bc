// Package postgres implements the engine's identity store on PostgreSQL.
// The single-use guarantees (prelogin clearing, assertion transitions) are
// expressed as conditional UPDATEs, so concurrent consumers race at the
// row level and exactly one wins.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scuolasuite/registroauth"
)

const accountColumns = `
	id, username, password_hash, role, full_name, tax_code, enabled,
	otp_secret, last_otp_used, last_login_at,
	prelogin_token, prelogin_ip_hash, prelogin_created_at,
	device_pairing_key`

// querier is the slice of the pgx pool the store needs. Tests substitute
// a fake; production always hands in a *pgxpool.Pool.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a pgx-backed identity provider. Not-found lookups return a nil
// account and no error; the engine maps nil to invalid_user.
type Store struct {
	db querier
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{db: pool}
}

func (s *Store) FindByUsername(ctx context.Context, username string) (*registroauth.Account, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE username = $1
	`, username)
	return scanAccount(row)
}

func (s *Store) FindByID(ctx context.Context, id string) (*registroauth.Account, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
	`, id)
	return scanAccount(row)
}

func (s *Store) FindByDevicePairingKey(ctx context.Context, key string) (*registroauth.Account, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE device_pairing_key = $1
	`, key)
	return scanAccount(row)
}

// FindByTaxCodeGroup returns the enabled accounts sharing the natural
// identity, grouped by role in discovery order. An empty fullName matches
// on tax code alone, which is what federated lookups have.
func (s *Store) FindByTaxCodeGroup(ctx context.Context, fullName, taxCode string) (map[registroauth.Role][]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, role
		FROM accounts
		WHERE tax_code = $1
		  AND enabled = true
		  AND ($2 = '' OR full_name = $2)
		ORDER BY id
	`, taxCode, fullName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groups := make(map[registroauth.Role][]string)
	for rows.Next() {
		var id string
		var role registroauth.Role
		if err := rows.Scan(&id, &role); err != nil {
			return nil, err
		}
		groups[role] = append(groups[role], id)
	}
	return groups, rows.Err()
}

func (s *Store) FindAssertion(ctx context.Context, responseID string) (*registroauth.FederatedAssertion, error) {
	var a registroauth.FederatedAssertion
	row := s.db.QueryRow(ctx, `
		SELECT response_id, state, subject_tax_code, logout_url
		FROM federated_assertions
		WHERE response_id = $1
	`, responseID)
	err := row.Scan(&a.ResponseID, &a.State, &a.SubjectTaxCode, &a.LogoutURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CompareAndSetAssertionState is the one-shot consumption primitive: the
// UPDATE only matches while the row still holds the expected state.
func (s *Store) CompareAndSetAssertionState(ctx context.Context, responseID string, from, to registroauth.AssertionState) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE federated_assertions
		SET state = $3
		WHERE response_id = $1 AND state = $2
	`, responseID, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CompareAndClearPrelogin reads and clears the prelogin fields in one
// statement, handing back what was cleared so the caller compares against
// values no other request can still consume. RETURNING on a plain UPDATE
// evaluates on the updated row (all NULLs here), so the old values are
// captured through a locked snapshot joined in FROM.
func (s *Store) CompareAndClearPrelogin(ctx context.Context, accountID string) (string, string, time.Time, bool, error) {
	var token, ipHash string
	var createdAt time.Time
	row := s.db.QueryRow(ctx, `
		UPDATE accounts a
		SET prelogin_token = NULL,
		    prelogin_ip_hash = NULL,
		    prelogin_created_at = NULL
		FROM (
			SELECT id, prelogin_token, prelogin_ip_hash, prelogin_created_at
			FROM accounts
			WHERE id = $1 AND prelogin_token IS NOT NULL
			FOR UPDATE
		) prev
		WHERE a.id = prev.id
		RETURNING prev.prelogin_token, prev.prelogin_ip_hash, prev.prelogin_created_at
	`, accountID)
	err := row.Scan(&token, &ipHash, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", time.Time{}, false, nil
	}
	if err != nil {
		return "", "", time.Time{}, false, err
	}
	return token, ipHash, createdAt, true, nil
}

func (s *Store) SetPrelogin(ctx context.Context, accountID, token, ipHash string, createdAt time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE accounts
		SET prelogin_token = $2,
		    prelogin_ip_hash = $3,
		    prelogin_created_at = $4
		WHERE id = $1
	`, accountID, token, ipHash, createdAt)
	return err
}

func (s *Store) UpdateLastLogin(ctx context.Context, accountID string, at time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE accounts SET last_login_at = $2 WHERE id = $1
	`, accountID, at)
	return err
}

func (s *Store) UpdateLastOTP(ctx context.Context, accountID, code string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE accounts SET last_otp_used = $2 WHERE id = $1
	`, accountID, code)
	return err
}

func (s *Store) UpdatePasswordHash(ctx context.Context, accountID, hash string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE accounts SET password_hash = $2 WHERE id = $1
	`, accountID, hash)
	return err
}

// Settings reads the school configuration table. It satisfies the
// engine's settings provider.
type Settings struct {
	db querier
}

func NewSettings(pool *pgxpool.Pool) *Settings {
	return &Settings{db: pool}
}

func (s *Settings) Value(ctx context.Context, key string) (string, error) {
	var value string
	row := s.db.QueryRow(ctx, `
		SELECT value FROM school_settings WHERE key = $1
	`, key)
	err := row.Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

type accountRow interface {
	Scan(dest ...any) error
}

func scanAccount(row accountRow) (*registroauth.Account, error) {
	var a registroauth.Account
	var passwordHash, taxCode, lastOTP, preloginToken, preloginIPHash, pairingKey *string
	var otpSecret []byte
	var lastLogin, preloginCreated *time.Time

	err := row.Scan(
		&a.ID,
		&a.Username,
		&passwordHash,
		&a.Role,
		&a.FullName,
		&taxCode,
		&a.Enabled,
		&otpSecret,
		&lastOTP,
		&lastLogin,
		&preloginToken,
		&preloginIPHash,
		&preloginCreated,
		&pairingKey,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if passwordHash != nil {
		a.PasswordHash = *passwordHash
	}
	if taxCode != nil {
		a.TaxCode = *taxCode
	}
	if lastOTP != nil {
		a.LastOTPUsed = *lastOTP
	}
	if lastLogin != nil {
		a.LastLoginAt = *lastLogin
	}
	if preloginToken != nil {
		a.PreloginToken = *preloginToken
	}
	if preloginIPHash != nil {
		a.PreloginIPHash = *preloginIPHash
	}
	if preloginCreated != nil {
		a.PreloginCreatedAt = *preloginCreated
	}
	if pairingKey != nil {
		a.DevicePairingKey = *pairingKey
	}
	a.OTPSecret = otpSecret

	return &a, nil
}
