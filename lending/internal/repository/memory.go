package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/Astemirdum/club-lending/lending/internal/errs"
	"github.com/Astemirdum/club-lending/lending/internal/model"
)

// Memory keeps everything in process. One mutex serializes writers, which
// gives the same compare-and-set and item-lock guarantees as the postgres repository.
type Memory struct {
	mu           sync.Mutex
	items        map[string]model.InventoryItem
	memberships  map[[2]string]model.Membership
	students     map[string]model.Student
	transactions map[string]model.Transaction
	deptRequests map[string]model.DepartmentRequest
	events       []model.TransactionEvent
	seq          int
}

var _ Repository = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		items:        make(map[string]model.InventoryItem),
		memberships:  make(map[[2]string]model.Membership),
		students:     make(map[string]model.Student),
		transactions: make(map[string]model.Transaction),
		deptRequests: make(map[string]model.DepartmentRequest),
	}
}

func (m *Memory) PutItem(item model.InventoryItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = item
}

func (m *Memory) PutMembership(ms model.Membership) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memberships[[2]string{ms.ClubID, ms.StudentID}] = ms
}

func (m *Memory) PutStudent(st model.Student) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[st.USN] = st
}

func (m *Memory) Events() []model.TransactionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.TransactionEvent(nil), m.events...)
}

func (m *Memory) GetItem(_ context.Context, id string) (model.InventoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return model.InventoryItem{}, errors.Wrap(errs.ErrNotFound, "inventory item")
	}
	return item, nil
}

func (m *Memory) GetMembership(_ context.Context, clubID, usn string) (*model.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.memberships[[2]string{clubID, usn}]
	if !ok {
		return nil, nil
	}
	return &ms, nil
}

func (m *Memory) GetStudent(_ context.Context, usn string) (*model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.students[usn]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (m *Memory) Availability(_ context.Context, itemID string) (model.Availability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.availability(itemID)
}

func (m *Memory) availability(itemID string) (model.Availability, error) {
	item, ok := m.items[itemID]
	if !ok {
		return model.Availability{}, errors.Wrap(errs.ErrNotFound, "inventory item")
	}
	avail := model.Availability{Quantity: item.Quantity}
	for _, t := range m.transactions {
		if t.InventoryID == itemID && t.Status.Reserves() {
			avail.Reserved += t.Quantity
		}
	}
	return avail, nil
}

func (m *Memory) CreateTransaction(_ context.Context, t model.Transaction, dr *model.DepartmentRequest, guard Guard) (model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	avail, err := m.availability(t.InventoryID)
	if err != nil {
		return model.Transaction{}, err
	}
	if guard != nil {
		if err := guard(avail, t.Quantity); err != nil {
			return model.Transaction{}, err
		}
	}
	if _, ok := m.transactions[t.ID]; ok {
		return model.Transaction{}, errors.Wrap(errs.ErrConflict, "transaction id")
	}

	m.transactions[t.ID] = t
	if dr != nil {
		m.seq++
		rec := *dr
		rec.ID = m.seq
		rec.TransactionID = t.ID
		rec.Decision = model.DecisionPending
		m.deptRequests[t.ID] = rec
	}
	return t, nil
}

func (m *Memory) GetTransaction(_ context.Context, id string) (model.TransactionDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[id]
	if !ok {
		return model.TransactionDetails{}, errors.Wrap(errs.ErrNotFound, "transaction")
	}
	details := model.TransactionDetails{Transaction: t}
	if dr, ok := m.deptRequests[id]; ok {
		details.DepartmentRequest = &dr
	}
	return details, nil
}

func (m *Memory) ListTransactions(_ context.Context, f model.Filter) ([]model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Transaction
	for _, t := range m.transactions {
		if f.Status != "" && t.EffectiveStatus(f.Now) != f.Status {
			continue
		}
		if f.ClubID != "" && (t.ClubID == nil || *t.ClubID != f.ClubID) {
			continue
		}
		if f.StudentID != "" && (t.StudentID == nil || *t.StudentID != f.StudentID) {
			continue
		}
		if f.InventoryID != "" && t.InventoryID != f.InventoryID {
			continue
		}
		if f.OwnerClubID != "" && m.items[t.InventoryID].ClubID != f.OwnerClubID {
			continue
		}
		if f.DepartmentID != "" {
			dr, ok := m.deptRequests[t.ID]
			if !ok || dr.DepartmentID != f.DepartmentID {
				continue
			}
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DateOfIssue.Equal(out[j].DateOfIssue) {
			return out[i].DateOfIssue.After(out[j].DateOfIssue)
		}
		return out[i].ID < out[j].ID
	})

	if f.Page != 0 && f.Size != 0 {
		from := (f.Page - 1) * f.Size
		if from >= len(out) {
			return nil, nil
		}
		to := from + f.Size
		if to > len(out) {
			to = len(out)
		}
		out = out[from:to]
	}
	return out, nil
}

func (m *Memory) ListExpired(_ context.Context, now time.Time, limit int) ([]model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Transaction
	for _, t := range m.transactions {
		if t.Status == model.StatusCollected && t.DueDate != nil && t.DueDate.Before(now) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(*out[j].DueDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Transition(_ context.Context, ch StatusChange) (model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.transactions[ch.ID]
	if !ok {
		return model.Transaction{}, errors.Wrap(errs.ErrNotFound, "transaction")
	}
	if t.Status != ch.Expected {
		return model.Transaction{}, errors.Wrap(errs.ErrConflict, "transaction status changed")
	}
	if ch.Capacity != nil {
		avail, err := m.availability(ch.InventoryID)
		if err != nil {
			return model.Transaction{}, err
		}
		if err := ch.Capacity(avail, ch.Quantity); err != nil {
			return model.Transaction{}, err
		}
	}

	if ch.Decision != "" {
		dr, ok := m.deptRequests[ch.ID]
		if !ok || dr.Decision != model.DecisionPending {
			return model.Transaction{}, errors.Wrap(errs.ErrConflict, "department request already decided")
		}
		dr.Decision = ch.Decision
		dr.DecidedBy = &ch.DecidedBy
		now := ch.Now
		dr.DecidedAt = &now
		m.deptRequests[ch.ID] = dr
	}

	t.Status = ch.To
	t.UpdatedAt = ch.Now
	m.transactions[ch.ID] = t
	return t, nil
}

func (m *Memory) Amend(_ context.Context, id string, expected model.Status, a model.Amendment, now time.Time) (model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.transactions[id]
	if !ok {
		return model.Transaction{}, errors.Wrap(errs.ErrNotFound, "transaction")
	}
	if t.Status != expected {
		return model.Transaction{}, errors.Wrap(errs.ErrConflict, "transaction status changed")
	}
	if a.Message != nil {
		t.Message = *a.Message
	}
	if a.DueDate != nil {
		due := *a.DueDate
		t.DueDate = &due
	}
	t.UpdatedAt = now
	m.transactions[id] = t
	return t, nil
}

func (m *Memory) RecordEvent(_ context.Context, ev model.TransactionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}
