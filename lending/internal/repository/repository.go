package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Astemirdum/club-lending/lending/internal/errs"
	"github.com/Astemirdum/club-lending/lending/internal/model"
)

type Repository interface {
	GetItem(ctx context.Context, id string) (model.InventoryItem, error)
	// GetMembership returns nil when the student is not a member of the club.
	GetMembership(ctx context.Context, clubID, usn string) (*model.Membership, error)
	// GetStudent returns nil when the student is unknown.
	GetStudent(ctx context.Context, usn string) (*model.Student, error)
	Availability(ctx context.Context, itemID string) (model.Availability, error)

	CreateTransaction(ctx context.Context, t model.Transaction, dr *model.DepartmentRequest, guard Guard) (model.Transaction, error)
	GetTransaction(ctx context.Context, id string) (model.TransactionDetails, error)
	ListTransactions(ctx context.Context, f model.Filter) ([]model.Transaction, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]model.Transaction, error)
	Transition(ctx context.Context, ch StatusChange) (model.Transaction, error)
	Amend(ctx context.Context, id string, expected model.Status, a model.Amendment, now time.Time) (model.Transaction, error)

	RecordEvent(ctx context.Context, ev model.TransactionEvent) error
}

// Guard re-validates capacity against availability read under the item lock.
type Guard func(avail model.Availability, requested int) error

// StatusChange is a compare-and-set on a transaction's status.
type StatusChange struct {
	ID          string
	InventoryID string
	Quantity    int
	Expected    model.Status
	To          model.Status
	// Decision, when set, is written to the pending department request in the same unit.
	Decision  model.Decision
	DecidedBy string
	// Capacity, when set, is evaluated while the item row is locked.
	Capacity Guard
	Now      time.Time
}

type repository struct {
	db  *pgxpool.Pool
	log *zap.Logger
}

var _ Repository = (*repository)(nil)

func NewRepository(db *pgxpool.Pool, log *zap.Logger) (*repository, error) {
	return &repository{
		db:  db,
		log: log.Named("repo"),
	}, nil
}

const (
	itemsTableName       = `inventory_items`
	membershipsTableName = `memberships`
	studentsTableName    = `students`
	transactionTableName = `transactions`
	deptRequestTableName = `department_requests`
	eventsTableName      = `transaction_events`
)

var (
	qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

	transactionColumns = []string{"id", "student_id", "club_id", "inventory_id", "quantity",
		"date_of_issue", "due_date", "status", "message", "updated_at"}
	deptRequestColumns = []string{"id", "dept_id", "usn", "transaction_id", "decision", "decided_by", "decided_at"}
)

func (r *repository) GetItem(ctx context.Context, id string) (model.InventoryItem, error) {
	query, args, err := qb.Select("id", "club_id", "name", "quantity", "cost", "is_public").
		From(itemsTableName).
		Where(sq.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return model.InventoryItem{}, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return model.InventoryItem{}, err
	}
	item, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.InventoryItem])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.InventoryItem{}, errors.Wrap(errs.ErrNotFound, "inventory item")
		}
		return model.InventoryItem{}, err
	}
	return item, nil
}

func (r *repository) GetMembership(ctx context.Context, clubID, usn string) (*model.Membership, error) {
	query, args, err := qb.Select("id", "club_id", "usn", "role").
		From(membershipsTableName).
		Where(sq.Eq{"club_id": clubID, "usn": usn}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	m, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Membership])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *repository) GetStudent(ctx context.Context, usn string) (*model.Student, error) {
	query, args, err := qb.Select("usn", "dept_id").
		From(studentsTableName).
		Where(sq.Eq{"usn": usn}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	st, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Student])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &st, nil
}

func (r *repository) Availability(ctx context.Context, itemID string) (model.Availability, error) {
	return availability(ctx, r.db, itemID, false)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// availability reads the owned quantity and the reserved sum. With lock set
// the item row stays locked until the surrounding transaction ends.
func availability(ctx context.Context, q querier, itemID string, lock bool) (model.Availability, error) {
	query, args, err := itemQuantityQuery(itemID, lock).ToSql()
	if err != nil {
		return model.Availability{}, err
	}
	var avail model.Availability
	if err := q.QueryRow(ctx, query, args...).Scan(&avail.Quantity); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Availability{}, errors.Wrap(errs.ErrNotFound, "inventory item")
		}
		return model.Availability{}, err
	}

	query, args, err = reservedQuery(itemID).ToSql()
	if err != nil {
		return model.Availability{}, err
	}
	if err := q.QueryRow(ctx, query, args...).Scan(&avail.Reserved); err != nil {
		return model.Availability{}, err
	}
	return avail, nil
}

func itemQuantityQuery(itemID string, lock bool) sq.SelectBuilder {
	q := qb.Select("quantity").From(itemsTableName).Where(sq.Eq{"id": itemID})
	if lock {
		q = q.Suffix("for update")
	}
	return q
}

func reservedQuery(itemID string) sq.SelectBuilder {
	reserving := make([]string, 0, 3)
	for _, s := range model.ReservingStatuses() {
		reserving = append(reserving, string(s))
	}
	return qb.Select("coalesce(sum(quantity), 0)").
		From(transactionTableName).
		Where(sq.Eq{"inventory_id": itemID, "status": reserving})
}

func (r *repository) CreateTransaction(ctx context.Context, t model.Transaction, dr *model.DepartmentRequest, guard Guard) (model.Transaction, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.Transaction{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if guard != nil {
		avail, err := availability(ctx, tx, t.InventoryID, true)
		if err != nil {
			return model.Transaction{}, err
		}
		if err := guard(avail, t.Quantity); err != nil {
			return model.Transaction{}, err
		}
	}

	query, args, err := qb.Insert(transactionTableName).
		Columns(transactionColumns...).
		Values(t.ID, t.StudentID, t.ClubID, t.InventoryID, t.Quantity,
			t.DateOfIssue, t.DueDate, string(t.Status), t.Message, t.UpdatedAt).
		Suffix("returning " + strings.Join(transactionColumns, ", ")).
		ToSql()
	if err != nil {
		return model.Transaction{}, err
	}
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return model.Transaction{}, classify(err)
	}
	created, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Transaction])
	if err != nil {
		r.log.Error("CreateTransaction", zap.String("q", query), zap.Any("args", args))
		return model.Transaction{}, classify(err)
	}

	if dr != nil {
		q := fmt.Sprintf(`insert into %s (dept_id, usn, transaction_id, decision)
	values (@dept_id, @usn, @transaction_id, @decision)`, deptRequestTableName)
		_, err = tx.Exec(ctx, q, pgx.NamedArgs{
			"dept_id":        dr.DepartmentID,
			"usn":            dr.StudentID,
			"transaction_id": created.ID,
			"decision":       string(model.DecisionPending),
		})
		if err != nil {
			return model.Transaction{}, classify(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Transaction{}, fmt.Errorf("commit: %w", err)
	}
	return created, nil
}

func (r *repository) GetTransaction(ctx context.Context, id string) (model.TransactionDetails, error) {
	t, err := getTransaction(ctx, r.db, id)
	if err != nil {
		return model.TransactionDetails{}, err
	}

	query, args, err := qb.Select(deptRequestColumns...).
		From(deptRequestTableName).
		Where(sq.Eq{"transaction_id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return model.TransactionDetails{}, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return model.TransactionDetails{}, err
	}
	dr, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.DepartmentRequest])
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return model.TransactionDetails{Transaction: t}, nil
	case err != nil:
		return model.TransactionDetails{}, err
	}
	return model.TransactionDetails{Transaction: t, DepartmentRequest: &dr}, nil
}

func getTransaction(ctx context.Context, q querier, id string) (model.Transaction, error) {
	query, args, err := qb.Select(transactionColumns...).
		From(transactionTableName).
		Where(sq.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return model.Transaction{}, err
	}
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return model.Transaction{}, err
	}
	t, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Transaction])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Transaction{}, errors.Wrap(errs.ErrNotFound, "transaction")
		}
		return model.Transaction{}, err
	}
	return t, nil
}

func (r *repository) ListTransactions(ctx context.Context, f model.Filter) ([]model.Transaction, error) {
	query, args, err := listQuery(f).ToSql()
	if err != nil {
		return nil, err
	}
	r.log.Debug("ListTransactions", zap.String("query", query), zap.Any("args", args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	items, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.Transaction])
	if err != nil {
		return nil, fmt.Errorf("pgx.CollectRows: %w", err)
	}
	return items, nil
}

// listQuery matches OVERDUE and COLLECTED by effective status as of f.Now.
func listQuery(f model.Filter) sq.SelectBuilder {
	cols := make([]string, 0, len(transactionColumns))
	for _, c := range transactionColumns {
		cols = append(cols, "t."+c)
	}
	q := qb.Select(cols...).From(transactionTableName + " t")

	switch f.Status {
	case "":
	case model.StatusOverdue:
		q = q.Where(sq.Or{
			sq.Eq{"t.status": string(model.StatusOverdue)},
			sq.And{sq.Eq{"t.status": string(model.StatusCollected)}, sq.Lt{"t.due_date": f.Now}},
		})
	case model.StatusCollected:
		q = q.Where(sq.Eq{"t.status": string(model.StatusCollected)}).
			Where(sq.Or{sq.Eq{"t.due_date": nil}, sq.GtOrEq{"t.due_date": f.Now}})
	default:
		q = q.Where(sq.Eq{"t.status": string(f.Status)})
	}
	if f.ClubID != "" {
		q = q.Where(sq.Eq{"t.club_id": f.ClubID})
	}
	if f.StudentID != "" {
		q = q.Where(sq.Eq{"t.student_id": f.StudentID})
	}
	if f.InventoryID != "" {
		q = q.Where(sq.Eq{"t.inventory_id": f.InventoryID})
	}
	if f.OwnerClubID != "" {
		q = q.Join(fmt.Sprintf("%s i on i.id = t.inventory_id", itemsTableName)).
			Where(sq.Eq{"i.club_id": f.OwnerClubID})
	}
	if f.DepartmentID != "" {
		q = q.Join(fmt.Sprintf("%s d on d.transaction_id = t.id", deptRequestTableName)).
			Where(sq.Eq{"d.dept_id": f.DepartmentID})
	}
	q = q.OrderBy("t.date_of_issue desc", "t.id")
	if f.Page != 0 && f.Size != 0 {
		q = q.Limit(uint64(f.Size)).Offset(uint64((f.Page - 1) * f.Size))
	}
	return q
}

func (r *repository) ListExpired(ctx context.Context, now time.Time, limit int) ([]model.Transaction, error) {
	query, args, err := qb.Select(transactionColumns...).
		From(transactionTableName).
		Where(sq.Eq{"status": string(model.StatusCollected)}).
		Where(sq.Lt{"due_date": now}).
		OrderBy("due_date").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[model.Transaction])
}

var (
	// transitionSQL only matches while the row still holds the status the caller read.
	transitionSQL = fmt.Sprintf(`update %s
	set status = @to, updated_at = @now
	where id = @id and status = @expected
	returning %s`, transactionTableName, strings.Join(transactionColumns, ", "))

	// decideRelaySQL consumes the department request once.
	decideRelaySQL = fmt.Sprintf(`update %s
	set decision = @decision, decided_by = @decided_by, decided_at = @now
	where transaction_id = @id and decision = @pending`, deptRequestTableName)
)

func (r *repository) Transition(ctx context.Context, ch StatusChange) (model.Transaction, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.Transaction{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if ch.Capacity != nil {
		avail, err := availability(ctx, tx, ch.InventoryID, true)
		if err != nil {
			return model.Transaction{}, err
		}
		// Approvals of one item serialize on the item lock, so a lost race
		// shows up here as a changed status rather than as missing capacity.
		cur, err := getTransaction(ctx, tx, ch.ID)
		if err != nil {
			return model.Transaction{}, err
		}
		if cur.Status != ch.Expected {
			return model.Transaction{}, errors.Wrap(errs.ErrConflict, "transaction status changed")
		}
		if err := ch.Capacity(avail, ch.Quantity); err != nil {
			return model.Transaction{}, err
		}
	}

	rows, err := tx.Query(ctx, transitionSQL, pgx.NamedArgs{
		"id":       ch.ID,
		"to":       string(ch.To),
		"expected": string(ch.Expected),
		"now":      ch.Now,
	})
	if err != nil {
		return model.Transaction{}, err
	}
	updated, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Transaction])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Transaction{}, r.missOrConflict(ctx, tx, ch.ID)
		}
		return model.Transaction{}, err
	}

	if ch.Decision != "" {
		tag, err := tx.Exec(ctx, decideRelaySQL, pgx.NamedArgs{
			"id":         ch.ID,
			"decision":   string(ch.Decision),
			"decided_by": ch.DecidedBy,
			"now":        ch.Now,
			"pending":    string(model.DecisionPending),
		})
		if err != nil {
			return model.Transaction{}, err
		}
		if tag.RowsAffected() == 0 {
			return model.Transaction{}, errors.Wrap(errs.ErrConflict, "department request already decided")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Transaction{}, fmt.Errorf("commit: %w", err)
	}
	return updated, nil
}

func (r *repository) Amend(ctx context.Context, id string, expected model.Status, a model.Amendment, now time.Time) (model.Transaction, error) {
	query, args, err := amendQuery(id, expected, a, now).ToSql()
	if err != nil {
		return model.Transaction{}, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return model.Transaction{}, err
	}
	updated, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Transaction])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Transaction{}, r.missOrConflict(ctx, r.db, id)
		}
		return model.Transaction{}, err
	}
	return updated, nil
}

func amendQuery(id string, expected model.Status, a model.Amendment, now time.Time) sq.UpdateBuilder {
	q := qb.Update(transactionTableName).
		Set("updated_at", now).
		Where(sq.Eq{"id": id, "status": string(expected)}).
		Suffix("returning " + strings.Join(transactionColumns, ", "))
	if a.Message != nil {
		q = q.Set("message", *a.Message)
	}
	if a.DueDate != nil {
		q = q.Set("due_date", *a.DueDate)
	}
	return q
}

func (r *repository) RecordEvent(ctx context.Context, ev model.TransactionEvent) error {
	q := fmt.Sprintf(`insert into %s (transaction_id, from_status, to_status, actor_kind, actor_id, timestamp)
	values (@transaction_id, @from_status, @to_status, @actor_kind, @actor_id, @timestamp)`, eventsTableName)
	args := pgx.NamedArgs{
		"transaction_id": ev.TransactionID,
		"from_status":    string(ev.From),
		"to_status":      string(ev.To),
		"actor_kind":     string(ev.ActorKind),
		"actor_id":       ev.ActorID,
		"timestamp":      ev.Timestamp,
	}
	_, err := r.db.Exec(ctx, q, args)
	return classify(err)
}

// missOrConflict tells a vanished row from a lost compare-and-set.
func (r *repository) missOrConflict(ctx context.Context, q querier, id string) error {
	if _, err := getTransaction(ctx, q, id); err != nil {
		return err
	}
	return errors.Wrap(errs.ErrConflict, "transaction status changed")
}

func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgerrcode.ForeignKeyViolation:
		return errors.Wrap(errs.ErrNotFound, pgErr.ConstraintName)
	case pgerrcode.UniqueViolation:
		return errors.Wrap(errs.ErrConflict, pgErr.ConstraintName)
	case pgerrcode.CheckViolation, pgerrcode.NotNullViolation:
		return errs.Validation("%s", pgErr.Message)
	}
	return err
}
