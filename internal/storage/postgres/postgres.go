package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/quangvo5803/HomeCareDN-sub005/internal/models/application"
	"github.com/quangvo5803/HomeCareDN-sub005/internal/models/request"
	"github.com/quangvo5803/HomeCareDN-sub005/internal/models/user"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrUserNotFound = errors.New("user not found")
	ErrForbidden    = errors.New("action is forbidden")
	ErrBadRequest   = errors.New("bad request")
)

// commissionWindow is how long a bidder has to pay the commission before a
// pending application is auto-rejected.
const commissionWindow = 72 * time.Hour

type Storage struct {
	db *sql.DB
}

func New(storagePath string) (*Storage, error) {
	const op = "storage.postgres.New"

	db, err := sql.Open("postgres", storagePath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for _, query := range []string{
		`
		CREATE TABLE IF NOT EXISTS appUser (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			username VARCHAR(100) NOT NULL UNIQUE,
			role VARCHAR(50) NOT NULL,
			createdAt TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		`,
		`
		CREATE TABLE IF NOT EXISTS serviceRequest (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			customerId UUID REFERENCES appUser(id) ON DELETE CASCADE,
			description VARCHAR(500),
			status VARCHAR(50) DEFAULT 'Opening',
			createdAt TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		`,
		`
		CREATE TABLE IF NOT EXISTS materialRequest (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			customerId UUID REFERENCES appUser(id) ON DELETE CASCADE,
			description VARCHAR(500),
			status VARCHAR(50) DEFAULT 'Opening',
			createdAt TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		`,
		`
		CREATE TABLE IF NOT EXISTS serviceApplication (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			requestId UUID REFERENCES serviceRequest(id) ON DELETE CASCADE,
			bidderId UUID REFERENCES appUser(id) ON DELETE CASCADE,
			status VARCHAR(50) DEFAULT 'Pending',
			commissionDueAt TIMESTAMP NOT NULL,
			createdAt TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		`,
		`
		CREATE TABLE IF NOT EXISTS materialApplication (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			requestId UUID REFERENCES materialRequest(id) ON DELETE CASCADE,
			bidderId UUID REFERENCES appUser(id) ON DELETE CASCADE,
			status VARCHAR(50) DEFAULT 'Pending',
			commissionDueAt TIMESTAMP NOT NULL,
			createdAt TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		`,
	} {
		stmt, err := db.Prepare(query)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if _, err := stmt.Exec(); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	return &Storage{db: db}, nil
}

func tablesFor(kind request.Kind) (string, string, error) {
	switch kind {
	case request.KindService:
		return "serviceApplication", "serviceRequest", nil
	case request.KindMaterial:
		return "materialApplication", "materialRequest", nil
	default:
		return "", "", fmt.Errorf("unknown request kind %q: %w", kind, ErrBadRequest)
	}
}

func (s *Storage) FetchUser(userId string) (user.User, error) {
	const op = "storage.postgres.FetchUser"
	var usr user.User

	stmt, err := s.db.Prepare(`
	SELECT id, username, role, createdAt
	FROM appUser
	WHERE id=$1
	`)
	if err != nil {
		return user.User{}, fmt.Errorf("%s: %w", op, err)
	}

	err = stmt.QueryRow(userId).Scan(&usr.Id, &usr.Username, &usr.Role, &usr.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return user.User{}, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	if err != nil {
		return user.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return usr, nil
}

func (s *Storage) SaveRequest(req request.CreateRequest) (request.Request, error) {
	const op = "storage.postgres.SaveRequest"
	var result request.Request

	_, reqTable, err := tablesFor(req.Kind)
	if err != nil {
		return request.Request{}, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.FetchUser(req.CustomerId); err != nil {
		return request.Request{}, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}

	stmt, err := s.db.Prepare(fmt.Sprintf(`
	INSERT INTO %s(customerId, description, status)
	VALUES ($1, $2, 'Opening')
	RETURNING id, customerId, description, status, createdAt
	`, reqTable))
	if err != nil {
		return request.Request{}, fmt.Errorf("%s: %w", op, err)
	}

	err = stmt.QueryRow(req.CustomerId, req.Description).
		Scan(&result.Id, &result.CustomerId, &result.Description, &result.Status, &result.CreatedAt)
	if err != nil {
		return request.Request{}, fmt.Errorf("%s: %w", op, err)
	}
	result.Kind = req.Kind

	return result, nil
}

func (s *Storage) ReadRequests(kind request.Kind, limit, offset int) ([]request.Request, error) {
	const op = "storage.postgres.ReadRequests"
	result := make([]request.Request, 0)

	_, reqTable, err := tablesFor(kind)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	stmt, err := s.db.Prepare(fmt.Sprintf(`
	SELECT id, customerId, description, status, createdAt
	FROM %s
	ORDER BY createdAt DESC
	LIMIT $1
	OFFSET $2
	`, reqTable))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rows, err := stmt.Query(limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for rows.Next() {
		var req request.Request
		err := rows.Scan(&req.Id, &req.CustomerId, &req.Description, &req.Status, &req.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		req.Kind = kind
		result = append(result, req)
	}

	return result, nil
}

func (s *Storage) ReadMyRequests(kind request.Kind, customerId string, limit, offset int) ([]request.Request, error) {
	const op = "storage.postgres.ReadMyRequests"
	result := make([]request.Request, 0)

	_, reqTable, err := tablesFor(kind)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.FetchUser(customerId); err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}

	stmt, err := s.db.Prepare(fmt.Sprintf(`
	SELECT id, customerId, description, status, createdAt
	FROM %s
	WHERE customerId=$1
	ORDER BY createdAt DESC
	LIMIT $2
	OFFSET $3
	`, reqTable))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rows, err := stmt.Query(customerId, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for rows.Next() {
		var req request.Request
		err := rows.Scan(&req.Id, &req.CustomerId, &req.Description, &req.Status, &req.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		req.Kind = kind
		result = append(result, req)
	}

	return result, nil
}

func (s *Storage) ReadRequestStatus(kind request.Kind, requestId string) (request.Status, error) {
	const op = "storage.postgres.ReadRequestStatus"
	var status request.Status

	_, reqTable, err := tablesFor(kind)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	stmt, err := s.db.Prepare(fmt.Sprintf(`
	SELECT status
	FROM %s
	WHERE id=$1
	`, reqTable))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	err = stmt.QueryRow(requestId).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return status, nil
}

func (s *Storage) UpdateRequestStatus(kind request.Kind, requestId, customerId string, status request.Status) (request.Request, error) {
	const op = "storage.postgres.UpdateRequestStatus"
	var result request.Request

	_, reqTable, err := tablesFor(kind)
	if err != nil {
		return request.Request{}, fmt.Errorf("%s: %w", op, err)
	}

	stmt, err := s.db.Prepare(fmt.Sprintf(`
	SELECT customerId
	FROM %s
	WHERE id=$1
	`, reqTable))
	if err != nil {
		return request.Request{}, fmt.Errorf("%s: %w", op, err)
	}

	var owner string
	err = stmt.QueryRow(requestId).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return request.Request{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return request.Request{}, fmt.Errorf("%s: %w", op, err)
	}
	if owner != customerId {
		return request.Request{}, fmt.Errorf("%s: %w", op, ErrForbidden)
	}

	stmt, err = s.db.Prepare(fmt.Sprintf(`
	UPDATE %s
	SET status = $1
	WHERE id = $2
	RETURNING id, customerId, description, status, createdAt
	`, reqTable))
	if err != nil {
		return request.Request{}, fmt.Errorf("%s: %w", op, err)
	}

	err = stmt.QueryRow(string(status), requestId).
		Scan(&result.Id, &result.CustomerId, &result.Description, &result.Status, &result.CreatedAt)
	if err != nil {
		return request.Request{}, fmt.Errorf("%s: %w", op, err)
	}
	result.Kind = kind

	return result, nil
}

func (s *Storage) SaveApplication(app application.CreateApplication) (application.Application, error) {
	const op = "storage.postgres.SaveApplication"
	var result application.Application

	appTable, reqTable, err := tablesFor(app.Kind)
	if err != nil {
		return application.Application{}, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.FetchUser(app.BidderId); err != nil {
		return application.Application{}, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}

	stmt, err := s.db.Prepare(fmt.Sprintf(`
	SELECT status
	FROM %s
	WHERE id=$1
	`, reqTable))
	if err != nil {
		return application.Application{}, fmt.Errorf("%s: %w", op, err)
	}

	var reqStatus request.Status
	err = stmt.QueryRow(app.RequestId).Scan(&reqStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return application.Application{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return application.Application{}, fmt.Errorf("%s: %w", op, err)
	}
	if reqStatus != request.Opening {
		return application.Application{}, fmt.Errorf("%s: request is not accepting applications: %w", op, ErrBadRequest)
	}

	stmt, err = s.db.Prepare(fmt.Sprintf(`
	INSERT INTO %s(requestId, bidderId, status, commissionDueAt)
	VALUES ($1, $2, 'Pending', $3)
	RETURNING id, requestId, bidderId, status, commissionDueAt, createdAt
	`, appTable))
	if err != nil {
		return application.Application{}, fmt.Errorf("%s: %w", op, err)
	}

	err = stmt.QueryRow(app.RequestId, app.BidderId, time.Now().UTC().Add(commissionWindow)).
		Scan(&result.Id, &result.RequestId, &result.BidderId, &result.Status, &result.CommissionDueAt, &result.CreatedAt)
	if err != nil {
		return application.Application{}, fmt.Errorf("%s: %w", op, err)
	}
	result.Kind = app.Kind

	return result, nil
}

func (s *Storage) ReadMyApplications(kind request.Kind, bidderId string, limit, offset int) ([]application.Application, error) {
	const op = "storage.postgres.ReadMyApplications"
	result := make([]application.Application, 0)

	appTable, _, err := tablesFor(kind)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.FetchUser(bidderId); err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}

	stmt, err := s.db.Prepare(fmt.Sprintf(`
	SELECT id, requestId, bidderId, status, commissionDueAt, createdAt
	FROM %s
	WHERE bidderId=$1
	ORDER BY createdAt DESC
	LIMIT $2
	OFFSET $3
	`, appTable))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rows, err := stmt.Query(bidderId, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for rows.Next() {
		var app application.Application
		err := rows.Scan(&app.Id, &app.RequestId, &app.BidderId, &app.Status, &app.CommissionDueAt, &app.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		app.Kind = kind
		result = append(result, app)
	}

	return result, nil
}

func (s *Storage) ReadRequestApplications(kind request.Kind, requestId string, limit, offset int) ([]application.Application, error) {
	const op = "storage.postgres.ReadRequestApplications"
	result := make([]application.Application, 0)

	appTable, _, err := tablesFor(kind)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	stmt, err := s.db.Prepare(fmt.Sprintf(`
	SELECT id, requestId, bidderId, status, commissionDueAt, createdAt
	FROM %s
	WHERE requestId=$1
	ORDER BY createdAt DESC
	LIMIT $2
	OFFSET $3
	`, appTable))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rows, err := stmt.Query(requestId, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for rows.Next() {
		var app application.Application
		err := rows.Scan(&app.Id, &app.RequestId, &app.BidderId, &app.Status, &app.CommissionDueAt, &app.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		app.Kind = kind
		result = append(result, app)
	}

	return result, nil
}

func (s *Storage) ReadApplicationStatus(kind request.Kind, applicationId string) (application.Status, error) {
	const op = "storage.postgres.ReadApplicationStatus"
	var status application.Status

	appTable, _, err := tablesFor(kind)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	stmt, err := s.db.Prepare(fmt.Sprintf(`
	SELECT status
	FROM %s
	WHERE id=$1
	`, appTable))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	err = stmt.QueryRow(applicationId).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return status, nil
}

// SubmitDecision records the customer's verdict on a pending application.
// Approving closes the parent request; both rows change in one transaction.
func (s *Storage) SubmitDecision(kind request.Kind, applicationId, customerId string, decision application.Decision) (application.Application, error) {
	const op = "storage.postgres.SubmitDecision"
	var result application.Application

	appTable, reqTable, err := tablesFor(kind)
	if err != nil {
		return application.Application{}, fmt.Errorf("%s: %w", op, err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return application.Application{}, fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback()

	var status application.Status
	var requestId, owner string
	err = tx.QueryRow(fmt.Sprintf(`
	SELECT a.status, a.requestId, r.customerId
	FROM %s a
	INNER JOIN %s r
	ON a.requestId = r.id
	WHERE a.id=$1
	`, appTable, reqTable), applicationId).Scan(&status, &requestId, &owner)
	if errors.Is(err, sql.ErrNoRows) {
		return application.Application{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return application.Application{}, fmt.Errorf("%s: %w", op, err)
	}
	if owner != customerId {
		return application.Application{}, fmt.Errorf("%s: %w", op, ErrForbidden)
	}
	if status != application.Pending {
		return application.Application{}, fmt.Errorf("%s: application already decided: %w", op, ErrBadRequest)
	}

	err = tx.QueryRow(fmt.Sprintf(`
	UPDATE %s
	SET status = $1
	WHERE id = $2
	RETURNING id, requestId, bidderId, status, commissionDueAt, createdAt
	`, appTable), string(decision), applicationId).
		Scan(&result.Id, &result.RequestId, &result.BidderId, &result.Status, &result.CommissionDueAt, &result.CreatedAt)
	if err != nil {
		return application.Application{}, fmt.Errorf("%s: %w", op, err)
	}
	result.Kind = kind

	if decision == application.DecisionApproved {
		_, err = tx.Exec(fmt.Sprintf(`
		UPDATE %s
		SET status = 'Closed'
		WHERE id = $1
		`, reqTable), requestId)
		if err != nil {
			return application.Application{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return application.Application{}, fmt.Errorf("%s: %w", op, err)
	}

	return result, nil
}

// BidStore exposes the reconciliation contract for one resource kind. All
// methods honor the caller's context so an in-flight pass can be cancelled
// between store operations.
type BidStore struct {
	db       *sql.DB
	kind     request.Kind
	appTable string
	reqTable string
}

func (s *Storage) BidStore(kind request.Kind) (*BidStore, error) {
	const op = "storage.postgres.BidStore"

	appTable, reqTable, err := tablesFor(kind)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &BidStore{db: s.db, kind: kind, appTable: appTable, reqTable: reqTable}, nil
}

func (b *BidStore) ExpiredPending(ctx context.Context, now time.Time) ([]application.Application, error) {
	const op = "storage.postgres.BidStore.ExpiredPending"
	result := make([]application.Application, 0)

	rows, err := b.db.QueryContext(ctx, fmt.Sprintf(`
	SELECT id, requestId, bidderId, status, commissionDueAt, createdAt
	FROM %s
	WHERE status = 'Pending' AND commissionDueAt < $1
	`, b.appTable), now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	for rows.Next() {
		var app application.Application
		err := rows.Scan(&app.Id, &app.RequestId, &app.BidderId, &app.Status, &app.CommissionDueAt, &app.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		app.Kind = b.kind
		result = append(result, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return result, nil
}

func (b *BidStore) ApplicationsByRequest(ctx context.Context, requestIds []string) ([]application.Application, error) {
	const op = "storage.postgres.BidStore.ApplicationsByRequest"
	result := make([]application.Application, 0)

	rows, err := b.db.QueryContext(ctx, fmt.Sprintf(`
	SELECT id, requestId, bidderId, status, commissionDueAt, createdAt
	FROM %s
	WHERE requestId = ANY($1)
	`, b.appTable), pq.Array(requestIds))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	for rows.Next() {
		var app application.Application
		err := rows.Scan(&app.Id, &app.RequestId, &app.BidderId, &app.Status, &app.CommissionDueAt, &app.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		app.Kind = b.kind
		result = append(result, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return result, nil
}

func (b *BidStore) Requests(ctx context.Context, requestIds []string) ([]request.Request, error) {
	const op = "storage.postgres.BidStore.Requests"
	result := make([]request.Request, 0)

	rows, err := b.db.QueryContext(ctx, fmt.Sprintf(`
	SELECT id, customerId, description, status, createdAt
	FROM %s
	WHERE id = ANY($1)
	`, b.reqTable), pq.Array(requestIds))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	for rows.Next() {
		var req request.Request
		err := rows.Scan(&req.Id, &req.CustomerId, &req.Description, &req.Status, &req.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		req.Kind = b.kind
		result = append(result, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return result, nil
}

// Commit persists the status changes of one reconciliation pass. Everything
// goes through a single transaction; any failure rolls the whole batch back.
func (b *BidStore) Commit(ctx context.Context, apps []application.Application, reqs []request.Request) error {
	const op = "storage.postgres.BidStore.Commit"

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback()

	for _, app := range apps {
		_, err := tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s
		SET status = $1
		WHERE id = $2
		`, b.appTable), string(app.Status), app.Id)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	for _, req := range reqs {
		_, err := tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s
		SET status = $1
		WHERE id = $2
		`, b.reqTable), string(req.Status), req.Id)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
