package service_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Astemirdum/club-lending/lending/internal/errs"
	"github.com/Astemirdum/club-lending/lending/internal/model"
	"github.com/Astemirdum/club-lending/lending/internal/repository"
	"github.com/Astemirdum/club-lending/lending/internal/service"
)

var (
	robotics   = model.Actor{Kind: model.ActorClub, ID: "robotics"}
	music      = model.Actor{Kind: model.ActorClub, ID: "music"}
	member     = model.Actor{Kind: model.ActorStudent, ID: "1MS21CS001"}
	outsider   = model.Actor{Kind: model.ActorStudent, ID: "1MS21EC042"}
	cseFaculty = model.Actor{Kind: model.ActorFaculty, ID: "f-7", DepartmentID: "cse"}
	eceFaculty = model.Actor{Kind: model.ActorFaculty, ID: "f-9", DepartmentID: "ece"}
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingEnqueuer struct {
	mu     sync.Mutex
	events []model.TransactionEvent
}

func (r *recordingEnqueuer) Enqueue(_, _ string, v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, v.(model.TransactionEvent))
	return nil
}

type fixture struct {
	svc   *service.Service
	repo  *repository.Memory
	clock *clock
	queue *recordingEnqueuer
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	repo := repository.NewMemory()
	repo.PutItem(model.InventoryItem{ID: "scope", ClubID: "robotics", Name: "Oscilloscope", Quantity: 3, Cost: 450, IsPublic: true})
	repo.PutItem(model.InventoryItem{ID: "arduino", ClubID: "robotics", Name: "Arduino Uno", Quantity: 1, Cost: 25, IsPublic: true})
	repo.PutItem(model.InventoryItem{ID: "drone", ClubID: "robotics", Name: "Drone kit", Quantity: 2, Cost: 900})
	repo.PutStudent(model.Student{USN: member.ID, DepartmentID: "cse"})
	repo.PutStudent(model.Student{USN: outsider.ID, DepartmentID: "cse"})
	repo.PutMembership(model.Membership{ID: 1, ClubID: "robotics", StudentID: member.ID, Role: model.RoleCoreMember})

	c := &clock{t: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)}
	var seq int64
	q := &recordingEnqueuer{}
	svc := service.NewService(repo, q, zap.NewNop(),
		service.WithClock(c.now),
		service.WithIDGenerator(func() string { return fmt.Sprintf("t-%d", atomic.AddInt64(&seq, 1)) }),
	)
	return fixture{svc: svc, repo: repo, clock: c, queue: q}
}

func TestScenarioA_ClubBorrows(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	tx, err := f.svc.SubmitRequest(ctx, music, model.SubmitRequest{InventoryID: "scope", Quantity: 2})
	require.NoError(t, err)
	require.Equal(t, model.StatusProcessing, tx.Status)
	require.NotNil(t, tx.ClubID)
	require.Equal(t, "music", *tx.ClubID)
	require.Nil(t, tx.StudentID)

	tx, err = f.svc.Decide(ctx, tx.ID, robotics, model.ActionApprove)
	require.NoError(t, err)
	require.Equal(t, model.StatusClubApproved, tx.Status)

	tx, err = f.svc.MarkCollected(ctx, tx.ID, robotics)
	require.NoError(t, err)
	require.Equal(t, model.StatusCollected, tx.Status)

	require.Len(t, f.queue.events, 3)
	require.Equal(t, model.Status(""), f.queue.events[0].From)
	require.Equal(t, model.StatusClubApproved, f.queue.events[2].From)
	require.Equal(t, model.StatusCollected, f.queue.events[2].To)
}

func TestScenarioB_MemberStudent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	tx, err := f.svc.SubmitRequest(ctx, member, model.SubmitRequest{InventoryID: "arduino", Quantity: 1})
	require.NoError(t, err)
	require.Equal(t, model.StatusProcessing, tx.Status)
	require.Equal(t, member.ID, *tx.StudentID)

	details, err := f.svc.GetRequest(ctx, tx.ID)
	require.NoError(t, err)
	require.Nil(t, details.DepartmentRequest)

	tx, err = f.svc.Decide(ctx, tx.ID, robotics, model.ActionApprove)
	require.NoError(t, err)
	require.Equal(t, model.StatusClubApproved, tx.Status)
}

func TestScenarioC_DepartmentRelay(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	tx, err := f.svc.SubmitRequest(ctx, outsider, model.SubmitRequest{InventoryID: "scope", Quantity: 1, Message: "final year project"})
	require.NoError(t, err)
	require.Equal(t, model.StatusDepartmentPending, tx.Status)

	details, err := f.svc.GetRequest(ctx, tx.ID)
	require.NoError(t, err)
	require.NotNil(t, details.DepartmentRequest)
	require.Equal(t, "cse", details.DepartmentRequest.DepartmentID)
	require.Equal(t, outsider.ID, details.DepartmentRequest.StudentID)
	require.Equal(t, model.DecisionPending, details.DepartmentRequest.Decision)

	_, err = f.svc.Decide(ctx, tx.ID, robotics, model.ActionApprove)
	require.ErrorIs(t, err, errs.ErrNotYetEligible)
	_, err = f.svc.Decide(ctx, tx.ID, eceFaculty, model.ActionApprove)
	require.ErrorIs(t, err, errs.ErrForbidden)

	tx, err = f.svc.Decide(ctx, tx.ID, cseFaculty, model.ActionApprove)
	require.NoError(t, err)
	require.Equal(t, model.StatusDepartmentApproved, tx.Status)

	details, err = f.svc.GetRequest(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, model.DecisionApproved, details.DepartmentRequest.Decision)
	require.Equal(t, cseFaculty.ID, *details.DepartmentRequest.DecidedBy)

	_, err = f.svc.Decide(ctx, tx.ID, cseFaculty, model.ActionReject)
	require.ErrorIs(t, err, errs.ErrForbidden)

	tx, err = f.svc.Decide(ctx, tx.ID, robotics, model.ActionApprove)
	require.NoError(t, err)
	require.Equal(t, model.StatusClubApproved, tx.Status)
}

func TestScenarioC_DepartmentRejects(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	tx, err := f.svc.SubmitRequest(ctx, outsider, model.SubmitRequest{InventoryID: "scope", Quantity: 1})
	require.NoError(t, err)

	tx, err = f.svc.Decide(ctx, tx.ID, cseFaculty, model.ActionReject)
	require.NoError(t, err)
	require.Equal(t, model.StatusRejected, tx.Status)

	for _, actor := range []model.Actor{robotics, cseFaculty} {
		for _, action := range []model.Action{model.ActionApprove, model.ActionReject} {
			_, err = f.svc.Decide(ctx, tx.ID, actor, action)
			require.Error(t, err)
		}
	}
	_, err = f.svc.MarkCollected(ctx, tx.ID, robotics)
	require.ErrorIs(t, err, errs.ErrInvalidTransition)
}

func TestScenarioD_CapacityExceeded(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SubmitRequest(ctx, music, model.SubmitRequest{InventoryID: "scope", Quantity: 5})
	require.ErrorIs(t, err, errs.ErrCapacityExceeded)

	items, err := f.svc.ListRequests(ctx, model.Filter{})
	require.NoError(t, err)
	require.Empty(t, items)
	require.Empty(t, f.queue.events)
}

func TestScenarioE_LazyOverdue(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	due := f.clock.now().Add(48 * time.Hour)
	tx, err := f.svc.SubmitRequest(ctx, music, model.SubmitRequest{InventoryID: "scope", Quantity: 1, DueDate: &due})
	require.NoError(t, err)
	_, err = f.svc.Decide(ctx, tx.ID, robotics, model.ActionApprove)
	require.NoError(t, err)
	_, err = f.svc.MarkCollected(ctx, tx.ID, robotics)
	require.NoError(t, err)

	f.clock.advance(72 * time.Hour)

	details, err := f.svc.GetRequest(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusOverdue, details.Status)

	overdue, err := f.svc.ListRequests(ctx, model.Filter{Status: model.StatusOverdue})
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	require.Equal(t, model.StatusOverdue, overdue[0].Status)

	collected, err := f.svc.ListRequests(ctx, model.Filter{Status: model.StatusCollected})
	require.NoError(t, err)
	require.Empty(t, collected)

	n, err := f.svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	stored, err := f.repo.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusOverdue, stored.Status)

	n, err = f.svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestSubmitRequest_Errors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	stranger := model.Actor{Kind: model.ActorStudent, ID: "1MS21ME999"}

	tests := []struct {
		name    string
		actor   model.Actor
		req     model.SubmitRequest
		wantErr error
	}{
		{name: "faculty", actor: cseFaculty, req: model.SubmitRequest{InventoryID: "scope", Quantity: 1}, wantErr: errs.ErrRoleNotPermitted},
		{name: "anonymous", actor: model.Actor{}, req: model.SubmitRequest{InventoryID: "scope", Quantity: 1}, wantErr: errs.ErrUnauthorized},
		{name: "unknown item", actor: music, req: model.SubmitRequest{InventoryID: "laser", Quantity: 1}, wantErr: errs.ErrNotFound},
		{name: "zero quantity", actor: music, req: model.SubmitRequest{InventoryID: "scope", Quantity: 0}, wantErr: errs.ErrValidation},
		{name: "own item", actor: robotics, req: model.SubmitRequest{InventoryID: "scope", Quantity: 1}, wantErr: errs.ErrValidation},
		{name: "private item", actor: music, req: model.SubmitRequest{InventoryID: "drone", Quantity: 1}, wantErr: errs.ErrForbidden},
		{name: "student without department", actor: stranger, req: model.SubmitRequest{InventoryID: "scope", Quantity: 1}, wantErr: errs.ErrDepartmentUnknown},
	}
	for _, tt := range tests {
		_, err := f.svc.SubmitRequest(ctx, tt.actor, tt.req)
		require.ErrorIs(t, err, tt.wantErr, tt.name)
	}

	items, err := f.svc.ListRequests(ctx, model.Filter{})
	require.NoError(t, err)
	require.Empty(t, items)
}

// readBarrier holds every GetTransaction until n readers have loaded the row,
// so concurrent deciders all act on the same prior status.
type readBarrier struct {
	*repository.Memory
	reads sync.WaitGroup
}

func newReadBarrier(repo *repository.Memory, n int) *readBarrier {
	b := &readBarrier{Memory: repo}
	b.reads.Add(n)
	return b
}

func (b *readBarrier) GetTransaction(ctx context.Context, id string) (model.TransactionDetails, error) {
	details, err := b.Memory.GetTransaction(ctx, id)
	b.reads.Done()
	b.reads.Wait()
	return details, err
}

func TestDecide_ConcurrentSamePriorStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		actions []model.Action
	}{
		{name: "approve and reject", actions: []model.Action{model.ActionApprove, model.ActionReject}},
		{name: "reject and approve", actions: []model.Action{model.ActionReject, model.ActionApprove}},
		{name: "double approve", actions: []model.Action{model.ActionApprove, model.ActionApprove}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			ctx := context.Background()
			tx, err := f.svc.SubmitRequest(ctx, music, model.SubmitRequest{InventoryID: "arduino", Quantity: 1})
			require.NoError(t, err)

			svc := service.NewService(newReadBarrier(f.repo, len(tt.actions)), nil, zap.NewNop(), service.WithClock(f.clock.now))
			results := make([]error, len(tt.actions))
			var wg sync.WaitGroup
			for j, action := range tt.actions {
				wg.Add(1)
				go func(j int, action model.Action) {
					defer wg.Done()
					_, results[j] = svc.Decide(ctx, tx.ID, robotics, action)
				}(j, action)
			}
			wg.Wait()

			ok, conflicts := 0, 0
			for _, err := range results {
				if err == nil {
					ok++
					continue
				}
				require.ErrorIs(t, err, errs.ErrConflict)
				conflicts++
			}
			require.Equal(t, 1, ok)
			require.Equal(t, 1, conflicts)

			avail, err := f.repo.Availability(ctx, "arduino")
			require.NoError(t, err)
			require.LessOrEqual(t, avail.Reserved, avail.Quantity)
		})
	}
}

func TestDecide_WithdrawApprovalReleasesCapacity(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	tx, err := f.svc.SubmitRequest(ctx, music, model.SubmitRequest{InventoryID: "arduino", Quantity: 1})
	require.NoError(t, err)
	_, err = f.svc.Decide(ctx, tx.ID, robotics, model.ActionApprove)
	require.NoError(t, err)
	_, err = f.svc.SubmitRequest(ctx, member, model.SubmitRequest{InventoryID: "arduino", Quantity: 1})
	require.ErrorIs(t, err, errs.ErrCapacityExceeded)

	_, err = f.svc.Decide(ctx, tx.ID, music, model.ActionReject)
	require.ErrorIs(t, err, errs.ErrForbidden)
	withdrawn, err := f.svc.Decide(ctx, tx.ID, robotics, model.ActionReject)
	require.NoError(t, err)
	require.Equal(t, model.StatusRejected, withdrawn.Status)

	avail, err := f.repo.Availability(ctx, "arduino")
	require.NoError(t, err)
	require.Zero(t, avail.Reserved)

	next, err := f.svc.SubmitRequest(ctx, member, model.SubmitRequest{InventoryID: "arduino", Quantity: 1})
	require.NoError(t, err)
	next, err = f.svc.Decide(ctx, next.ID, robotics, model.ActionApprove)
	require.NoError(t, err)
	require.Equal(t, model.StatusClubApproved, next.Status)

	collected, err := f.svc.MarkCollected(ctx, next.ID, robotics)
	require.NoError(t, err)
	_, err = f.svc.Decide(ctx, collected.ID, robotics, model.ActionReject)
	require.ErrorIs(t, err, errs.ErrInvalidTransition)
}

func TestDecide_LostCompareAndSet(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	tx, err := f.svc.SubmitRequest(ctx, music, model.SubmitRequest{InventoryID: "scope", Quantity: 1})
	require.NoError(t, err)

	// both deciders read PROCESSING; the first write wins
	_, err = f.repo.Transition(ctx, repository.StatusChange{
		ID: tx.ID, InventoryID: "scope", Quantity: 1,
		Expected: model.StatusProcessing, To: model.StatusRejected, Now: f.clock.now(),
	})
	require.NoError(t, err)
	_, err = f.repo.Transition(ctx, repository.StatusChange{
		ID: tx.ID, InventoryID: "scope", Quantity: 1,
		Expected: model.StatusProcessing, To: model.StatusClubApproved, Now: f.clock.now(),
	})
	require.ErrorIs(t, err, errs.ErrConflict)

	stored, err := f.svc.GetRequest(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusRejected, stored.Status)
}

func TestDecide_ApprovalReservesCapacity(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.SubmitRequest(ctx, music, model.SubmitRequest{InventoryID: "arduino", Quantity: 1})
	require.NoError(t, err)
	second, err := f.svc.SubmitRequest(ctx, member, model.SubmitRequest{InventoryID: "arduino", Quantity: 1})
	require.NoError(t, err)

	_, err = f.svc.Decide(ctx, first.ID, robotics, model.ActionApprove)
	require.NoError(t, err)
	_, err = f.svc.Decide(ctx, second.ID, robotics, model.ActionApprove)
	require.ErrorIs(t, err, errs.ErrCapacityExceeded)

	stored, err := f.svc.GetRequest(ctx, second.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusProcessing, stored.Status)

	_, err = f.svc.SubmitRequest(ctx, music, model.SubmitRequest{InventoryID: "arduino", Quantity: 1})
	require.ErrorIs(t, err, errs.ErrCapacityExceeded)

	_, err = f.svc.Decide(ctx, second.ID, robotics, model.ActionReject)
	require.NoError(t, err)
}

func TestDecide_Validation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Decide(ctx, "t-404", robotics, model.ActionApprove)
	require.ErrorIs(t, err, errs.ErrNotFound)

	tx, err := f.svc.SubmitRequest(ctx, music, model.SubmitRequest{InventoryID: "scope", Quantity: 1})
	require.NoError(t, err)
	_, err = f.svc.Decide(ctx, tx.ID, robotics, model.ActionCollect)
	require.ErrorIs(t, err, errs.ErrValidation)
	_, err = f.svc.Decide(ctx, tx.ID, music, model.ActionApprove)
	require.ErrorIs(t, err, errs.ErrForbidden)
	_, err = f.svc.MarkCollected(ctx, tx.ID, robotics)
	require.ErrorIs(t, err, errs.ErrInvalidTransition)
}

func TestAmend(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	tx, err := f.svc.SubmitRequest(ctx, outsider, model.SubmitRequest{InventoryID: "scope", Quantity: 1})
	require.NoError(t, err)

	msg := "collect from lab 3"
	due := f.clock.now().Add(7 * 24 * time.Hour)
	f.clock.advance(time.Minute)
	amended, err := f.svc.Amend(ctx, tx.ID, robotics, model.Amendment{Message: &msg, DueDate: &due})
	require.NoError(t, err)
	require.Equal(t, model.StatusDepartmentPending, amended.Status)
	require.Equal(t, msg, amended.Message)
	require.Equal(t, due, *amended.DueDate)
	require.Equal(t, f.clock.now(), amended.UpdatedAt)

	_, err = f.svc.Amend(ctx, tx.ID, music, model.Amendment{Message: &msg})
	require.ErrorIs(t, err, errs.ErrForbidden)

	_, err = f.svc.Decide(ctx, tx.ID, cseFaculty, model.ActionReject)
	require.NoError(t, err)
	_, err = f.svc.Amend(ctx, tx.ID, robotics, model.Amendment{Message: &msg})
	require.ErrorIs(t, err, errs.ErrInvalidTransition)
}

func TestAmend_OverdueDueDateFrozen(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	due := f.clock.now().Add(48 * time.Hour)
	tx, err := f.svc.SubmitRequest(ctx, music, model.SubmitRequest{InventoryID: "scope", Quantity: 1, DueDate: &due})
	require.NoError(t, err)
	_, err = f.svc.Decide(ctx, tx.ID, robotics, model.ActionApprove)
	require.NoError(t, err)
	_, err = f.svc.MarkCollected(ctx, tx.ID, robotics)
	require.NoError(t, err)

	extended := due.Add(24 * time.Hour)
	amended, err := f.svc.Amend(ctx, tx.ID, robotics, model.Amendment{DueDate: &extended})
	require.NoError(t, err)
	require.Equal(t, extended, *amended.DueDate)

	f.clock.advance(96 * time.Hour)
	later := f.clock.now().Add(24 * time.Hour)
	_, err = f.svc.Amend(ctx, tx.ID, robotics, model.Amendment{DueDate: &later})
	require.ErrorIs(t, err, errs.ErrInvalidTransition)

	msg := "return to lab 3"
	amended, err = f.svc.Amend(ctx, tx.ID, robotics, model.Amendment{Message: &msg})
	require.NoError(t, err)
	require.Equal(t, msg, amended.Message)

	details, err := f.svc.GetRequest(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusOverdue, details.Status)
	require.Equal(t, extended, *details.DueDate)
}

func TestListRequests(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.SubmitRequest(ctx, music, model.SubmitRequest{InventoryID: "scope", Quantity: 1})
	require.NoError(t, err)
	f.clock.advance(time.Minute)
	b, err := f.svc.SubmitRequest(ctx, outsider, model.SubmitRequest{InventoryID: "scope", Quantity: 1})
	require.NoError(t, err)
	f.clock.advance(time.Minute)
	c, err := f.svc.SubmitRequest(ctx, member, model.SubmitRequest{InventoryID: "arduino", Quantity: 1})
	require.NoError(t, err)

	all, err := f.svc.ListRequests(ctx, model.Filter{OwnerClubID: "robotics"})
	require.NoError(t, err)
	require.Equal(t, []string{c.ID, b.ID, a.ID}, ids(all))

	byDept, err := f.svc.ListRequests(ctx, model.Filter{DepartmentID: "cse"})
	require.NoError(t, err)
	require.Equal(t, []string{b.ID}, ids(byDept))

	byClub, err := f.svc.ListRequests(ctx, model.Filter{ClubID: "music"})
	require.NoError(t, err)
	require.Equal(t, []string{a.ID}, ids(byClub))

	byStatus, err := f.svc.ListRequests(ctx, model.Filter{Status: model.StatusProcessing, InventoryID: "scope"})
	require.NoError(t, err)
	require.Equal(t, []string{a.ID}, ids(byStatus))

	page, err := f.svc.ListRequests(ctx, model.Filter{Page: 2, Size: 2})
	require.NoError(t, err)
	require.Equal(t, []string{a.ID}, ids(page))

	_, err = f.svc.ListRequests(ctx, model.Filter{Status: "RETURNED"})
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestBorrowerInvariant(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	for _, actor := range []model.Actor{music, member, outsider} {
		_, err := f.svc.SubmitRequest(ctx, actor, model.SubmitRequest{InventoryID: "scope", Quantity: 1})
		require.NoError(t, err)
	}
	all, err := f.svc.ListRequests(ctx, model.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, tx := range all {
		_, _, ok := tx.Borrower()
		require.True(t, ok, tx.ID)
	}
}

func ids(items []model.Transaction) []string {
	out := make([]string, 0, len(items))
	for _, t := range items {
		out = append(out, t.ID)
	}
	return out
}
