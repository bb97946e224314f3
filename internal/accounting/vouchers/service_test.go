package vouchers

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/coa"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/parties"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/sequence"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

type memoryRepo struct {
	mu        sync.Mutex
	vouchers  map[int64]Voucher
	approvals []Approval
	accounts  map[int64]coa.Account
	periods   map[int64]periods.Period
	parties   map[int64]parties.Party
	sequences map[string]sequence.Sequence
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		vouchers:  map[int64]Voucher{},
		accounts:  map[int64]coa.Account{},
		periods:   map[int64]periods.Period{},
		parties:   map[int64]parties.Party{},
		sequences: map[string]sequence.Sequence{},
	}
}

// WithTx serialises transactions and rolls back the voucher side on error.
func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	vouchers := maps.Clone(m.vouchers)
	approvals := append([]Approval(nil), m.approvals...)
	sequences := maps.Clone(m.sequences)
	if err := fn(ctx, m); err != nil {
		m.vouchers, m.approvals, m.sequences = vouchers, approvals, sequences
		return err
	}
	return nil
}

func (m *memoryRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func seqKey(voucherType string, periodID int64) string {
	return fmt.Sprintf("%s/%d", voucherType, periodID)
}

func (m *memoryRepo) EnsureSequence(ctx context.Context, seq sequence.Sequence) error {
	k := seqKey(seq.VoucherType, seq.PeriodID)
	if _, ok := m.sequences[k]; !ok {
		seq.ID = m.id()
		m.sequences[k] = seq
	}
	return nil
}

func (m *memoryRepo) GetSequence(ctx context.Context, voucherType string, periodID int64) (sequence.Sequence, error) {
	seq, ok := m.sequences[seqKey(voucherType, periodID)]
	if !ok {
		return sequence.Sequence{}, shared.ErrSequenceMissing
	}
	return seq, nil
}

func (m *memoryRepo) LockSequence(ctx context.Context, voucherType string, periodID int64) (sequence.Sequence, error) {
	return m.GetSequence(ctx, voucherType, periodID)
}

func (m *memoryRepo) SetLastNumber(ctx context.Context, id, last int64) error {
	for k, seq := range m.sequences {
		if seq.ID == id {
			seq.LastNumber = last
			m.sequences[k] = seq
			return nil
		}
	}
	return shared.ErrSequenceMissing
}

func (m *memoryRepo) GetVoucher(ctx context.Context, id int64) (Voucher, error) {
	v, ok := m.vouchers[id]
	if !ok {
		return Voucher{}, shared.ErrVoucherNotFound
	}
	v.Lines = append([]Line(nil), v.Lines...)
	return v, nil
}

func (m *memoryRepo) GetVoucherForUpdate(ctx context.Context, id int64) (Voucher, error) {
	return m.GetVoucher(ctx, id)
}

func (m *memoryRepo) ListVouchers(ctx context.Context, f ListFilter) ([]Voucher, error) {
	var out []Voucher
	for _, v := range m.vouchers {
		if f.Status != "" && v.Status != f.Status {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memoryRepo) InsertVoucher(ctx context.Context, v Voucher) (Voucher, error) {
	v.ID = m.id()
	v.CreatedAt = time.Now()
	v.UpdatedAt = v.CreatedAt
	lines, _ := m.ReplaceLinesFor(v.ID, v.Lines)
	v.Lines = lines
	m.vouchers[v.ID] = v
	return v, nil
}

func (m *memoryRepo) UpdateVoucher(ctx context.Context, v Voucher) error {
	cur, ok := m.vouchers[v.ID]
	if !ok {
		return shared.ErrVoucherNotFound
	}
	v.Lines = cur.Lines
	m.vouchers[v.ID] = v
	return nil
}

func (m *memoryRepo) ReplaceLinesFor(voucherID int64, lines []Line) ([]Line, error) {
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		l.ID = m.id()
		l.VoucherID = voucherID
		out = append(out, l)
	}
	return out, nil
}

func (m *memoryRepo) ReplaceLines(ctx context.Context, voucherID int64, lines []Line) ([]Line, error) {
	v, ok := m.vouchers[voucherID]
	if !ok {
		return nil, shared.ErrVoucherNotFound
	}
	out, _ := m.ReplaceLinesFor(voucherID, lines)
	v.Lines = out
	m.vouchers[voucherID] = v
	return out, nil
}

func (m *memoryRepo) DeleteVoucher(ctx context.Context, id int64) error {
	if _, ok := m.vouchers[id]; !ok {
		return shared.ErrVoucherNotFound
	}
	delete(m.vouchers, id)
	return nil
}

func (m *memoryRepo) UpdateWorkflow(ctx context.Context, id int64, status Status, number *string) error {
	v, ok := m.vouchers[id]
	if !ok {
		return shared.ErrVoucherNotFound
	}
	if number != nil {
		for _, other := range m.vouchers {
			if other.ID != id && other.Number != nil && *other.Number == *number {
				return shared.ErrDuplicate
			}
		}
	}
	v.Status = status
	if v.Number == nil {
		v.Number = number
	}
	m.vouchers[id] = v
	return nil
}

func (m *memoryRepo) InsertApproval(ctx context.Context, a Approval) (Approval, error) {
	a.ID = m.id()
	a.CreatedAt = time.Now()
	m.approvals = append(m.approvals, a)
	return a, nil
}

func (m *memoryRepo) ListApprovals(ctx context.Context, voucherID int64) ([]Approval, error) {
	var out []Approval
	for _, a := range m.approvals {
		if a.VoucherID == voucherID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memoryRepo) GetAccounts(ctx context.Context, ids []int64) (map[int64]coa.Account, error) {
	out := map[int64]coa.Account{}
	for _, id := range ids {
		if acc, ok := m.accounts[id]; ok {
			out[id] = acc
		}
	}
	return out, nil
}

func (m *memoryRepo) GetPeriod(ctx context.Context, id int64) (periods.Period, error) {
	p, ok := m.periods[id]
	if !ok {
		return periods.Period{}, shared.ErrPeriodNotFound
	}
	return p, nil
}

func (m *memoryRepo) FindPeriodByDate(ctx context.Context, date time.Time) (periods.Period, error) {
	for _, p := range m.periods {
		if p.Contains(date) {
			return p, nil
		}
	}
	return periods.Period{}, shared.ErrPeriodNotFound
}

func (m *memoryRepo) GetParty(ctx context.Context, id int64) (parties.Party, error) {
	p, ok := m.parties[id]
	if !ok {
		return parties.Party{}, shared.ErrPartyNotFound
	}
	return p, nil
}

type recordingQueue struct {
	ids []int64
	err error
}

func (q *recordingQueue) EnqueuePropagation(ctx context.Context, voucherID int64) error {
	q.ids = append(q.ids, voucherID)
	return q.err
}

const (
	cashID    int64 = 101
	revenueID int64 = 401
	closedID  int64 = 999
	mayID     int64 = 5
	juneID    int64 = 6
	aprilID   int64 = 4
	actor     int64 = 42
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func fixture(t *testing.T) (*Service, *memoryRepo, *recordingQueue) {
	t.Helper()
	repo := newMemoryRepo()
	repo.nextID = 1000
	repo.accounts[cashID] = coa.Account{ID: cashID, Number: "1000", Name: "Cash", Type: coa.AccountTypeAsset, IsActive: true, AllowDirectPosting: true}
	repo.accounts[revenueID] = coa.Account{ID: revenueID, Number: "4000", Name: "Sales", Type: coa.AccountTypeIncome, PLSection: coa.PLSectionRevenue, IsActive: true, AllowDirectPosting: true}
	repo.accounts[closedID] = coa.Account{ID: closedID, Number: "1999", Name: "Suspense", Type: coa.AccountTypeAsset, IsActive: true}
	repo.periods[aprilID] = periods.Period{ID: aprilID, StartDate: date(2024, 4, 1), EndDate: date(2024, 4, 30), Locked: true}
	repo.periods[mayID] = periods.Period{ID: mayID, StartDate: date(2024, 5, 1), EndDate: date(2024, 5, 31)}
	repo.periods[juneID] = periods.Period{ID: juneID, StartDate: date(2024, 6, 1), EndDate: date(2024, 6, 30)}
	queue := &recordingQueue{}
	svc := NewService(repo, queue, nil)
	svc.WithNow(func() time.Time { return time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC) })
	return svc, repo, queue
}

func cashSale(day time.Time, debit, credit string) DraftInput {
	return DraftInput{
		Type:      TypeSales,
		Date:      day,
		Narration: "Counter sale",
		Lines: []LineInput{
			{AccountID: cashID, DrCr: coa.SideDebit, Amount: amount(debit), Narration: "cash in"},
			{AccountID: revenueID, DrCr: coa.SideCredit, Amount: amount(credit), Narration: "sale"},
		},
	}
}

func TestSubmitApproveAndPost(t *testing.T) {
	svc, repo, queue := fixture(t)
	ctx := context.Background()

	draft, err := svc.CreateDraft(ctx, cashSale(date(2024, 5, 10), "100.00", "100.00"), actor)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, draft.Status)
	require.Equal(t, mayID, draft.PeriodID)
	require.Nil(t, draft.Number)

	submitted, err := svc.Submit(ctx, draft.ID, actor)
	require.NoError(t, err)
	require.Equal(t, StatusPendingApproval, submitted.Status)
	require.Equal(t, "SA-2024Q2-0001", submitted.NumberOrEmpty())

	posted, err := svc.ApproveAndPost(ctx, draft.ID, actor+1, "  looks good ")
	require.NoError(t, err)
	require.Equal(t, StatusPosted, posted.Status)
	require.Equal(t, []int64{draft.ID}, queue.ids)

	trail, err := svc.Approvals(ctx, draft.ID)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	require.Equal(t, ActionSubmitted, trail[0].Action)
	require.Equal(t, StatusDraft, trail[0].FromStatus)
	require.Equal(t, StatusPendingApproval, trail[0].ToStatus)
	require.Equal(t, ActionApproved, trail[1].Action)
	require.Equal(t, "looks good", trail[1].Comments)
	require.Equal(t, StatusPosted, repo.vouchers[draft.ID].Status)
}

func TestSubmitUnbalancedStaysDraft(t *testing.T) {
	svc, repo, _ := fixture(t)
	ctx := context.Background()
	draft, err := svc.CreateDraft(ctx, cashSale(date(2024, 5, 10), "100", "90"), actor)
	require.NoError(t, err)

	_, err = svc.Submit(ctx, draft.ID, actor)
	var berr *shared.BalanceError
	require.ErrorAs(t, err, &berr)
	require.True(t, berr.Debit.Equal(amount("100")))
	require.True(t, berr.Credit.Equal(amount("90")))
	require.ErrorIs(t, err, shared.ErrValidation)

	require.Equal(t, StatusDraft, repo.vouchers[draft.ID].Status)
	require.Nil(t, repo.vouchers[draft.ID].Number)
	require.Empty(t, repo.approvals)
}

func TestSubmitInLockedPeriod(t *testing.T) {
	svc, repo, _ := fixture(t)
	ctx := context.Background()
	draft, err := svc.CreateDraft(ctx, cashSale(date(2024, 4, 10), "50", "50"), actor)
	require.NoError(t, err)

	_, err = svc.Submit(ctx, draft.ID, actor)
	var lerr *shared.PeriodLockedError
	require.ErrorAs(t, err, &lerr)
	require.Equal(t, StatusDraft, repo.vouchers[draft.ID].Status)
	require.Empty(t, repo.sequences)
}

func TestSubmitRejectsNonPostableAccount(t *testing.T) {
	svc, _, _ := fixture(t)
	ctx := context.Background()
	in := cashSale(date(2024, 5, 2), "10", "10")
	in.Lines[0].AccountID = closedID
	draft, err := svc.CreateDraft(ctx, in, actor)
	require.NoError(t, err)

	_, err = svc.Submit(ctx, draft.ID, actor)
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "lines[0].account_id")
}

func TestSubmitRejectsDateOutsidePeriod(t *testing.T) {
	svc, _, _ := fixture(t)
	ctx := context.Background()
	in := cashSale(date(2024, 6, 2), "10", "10")
	in.PeriodID = ptr(mayID)
	draft, err := svc.CreateDraft(ctx, in, actor)
	require.NoError(t, err)

	_, err = svc.Submit(ctx, draft.ID, actor)
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "date")
}

func TestWorkflowStateErrors(t *testing.T) {
	svc, _, queue := fixture(t)
	ctx := context.Background()
	draft, err := svc.CreateDraft(ctx, cashSale(date(2024, 5, 10), "10", "10"), actor)
	require.NoError(t, err)

	_, err = svc.ApproveAndPost(ctx, draft.ID, actor, "")
	var serr *shared.InvalidStateError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, string(StatusDraft), serr.Current)
	require.ElementsMatch(t, []string{string(StatusPendingApproval), string(StatusRejected)}, serr.Expected)

	_, err = svc.Reject(ctx, draft.ID, actor, "no")
	require.ErrorIs(t, err, shared.ErrInvalidState)

	_, err = svc.Submit(ctx, draft.ID, actor)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, draft.ID, actor)
	require.ErrorIs(t, err, shared.ErrInvalidState)

	_, err = svc.UpdateDraft(ctx, draft.ID, cashSale(date(2024, 5, 11), "10", "10"))
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.ErrorIs(t, svc.DeleteDraft(ctx, draft.ID), shared.ErrInvalidState)
	require.Empty(t, queue.ids)
}

func TestRejectRequiresCommentsAndAllowsRepost(t *testing.T) {
	svc, _, queue := fixture(t)
	ctx := context.Background()
	draft, err := svc.CreateDraft(ctx, cashSale(date(2024, 5, 10), "10", "10"), actor)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, draft.ID, actor)
	require.NoError(t, err)

	_, err = svc.Reject(ctx, draft.ID, actor, "   ")
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "comments")

	rejected, err := svc.Reject(ctx, draft.ID, actor, "wrong customer")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)

	posted, err := svc.ApproveAndPost(ctx, draft.ID, actor, "")
	require.NoError(t, err)
	require.Equal(t, StatusPosted, posted.Status)
	require.Equal(t, "SA-2024Q2-0001", posted.NumberOrEmpty())
	require.Len(t, queue.ids, 1)
}

func TestEnqueueFailureDoesNotUndoPosting(t *testing.T) {
	svc, repo, queue := fixture(t)
	queue.err = errors.New("redis down")
	ctx := context.Background()
	draft, err := svc.CreateDraft(ctx, cashSale(date(2024, 5, 10), "10", "10"), actor)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, draft.ID, actor)
	require.NoError(t, err)

	posted, err := svc.ApproveAndPost(ctx, draft.ID, actor, "")
	require.NoError(t, err)
	require.Equal(t, StatusPosted, posted.Status)
	require.False(t, repo.vouchers[draft.ID].BalancesUpdated)
}

func TestSequentialNumbersPerTypeAndPeriod(t *testing.T) {
	svc, _, _ := fixture(t)
	ctx := context.Background()
	var numbers []string
	for i := 0; i < 3; i++ {
		d, err := svc.CreateDraft(ctx, cashSale(date(2024, 5, 3+i), "1", "1"), actor)
		require.NoError(t, err)
		v, err := svc.Submit(ctx, d.ID, actor)
		require.NoError(t, err)
		numbers = append(numbers, v.NumberOrEmpty())
	}
	general := cashSale(date(2024, 6, 3), "1", "1")
	general.Type = TypeGeneral
	d, err := svc.CreateDraft(ctx, general, actor)
	require.NoError(t, err)
	v, err := svc.Submit(ctx, d.ID, actor)
	require.NoError(t, err)

	require.Equal(t, []string{"SA-2024Q2-0001", "SA-2024Q2-0002", "SA-2024Q2-0003"}, numbers)
	require.Equal(t, "GE-2024Q2-0001", v.NumberOrEmpty())
}

func TestCreateDraftValidation(t *testing.T) {
	svc, repo, _ := fixture(t)
	ctx := context.Background()

	_, err := svc.CreateDraft(ctx, DraftInput{Type: "BOGUS", Date: date(2024, 5, 1)}, actor)
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "voucher_type")
	require.Contains(t, verr.Fields, "lines")

	in := cashSale(date(2024, 5, 1), "0", "-1")
	_, err = svc.CreateDraft(ctx, in, actor)
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "lines[0].amount")
	require.Contains(t, verr.Fields, "lines[1].amount")

	_, err = svc.CreateDraft(ctx, cashSale(date(2025, 1, 1), "1", "1"), actor)
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "date")

	repo.parties[7] = parties.Party{ID: 7, Name: "Dormant Co", IsActive: false}
	in = cashSale(date(2024, 5, 1), "1", "1")
	in.PartyID = ptr(int64(7))
	_, err = svc.CreateDraft(ctx, in, actor)
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "party_id")
	require.Empty(t, repo.vouchers)
}

func TestUpdateAndDeleteDraft(t *testing.T) {
	svc, repo, _ := fixture(t)
	ctx := context.Background()
	draft, err := svc.CreateDraft(ctx, cashSale(date(2024, 5, 10), "10", "10"), actor)
	require.NoError(t, err)

	in := cashSale(date(2024, 6, 12), "25", "25")
	in.Lines = append(in.Lines, LineInput{AccountID: cashID, DrCr: coa.SideDebit, Amount: amount("5")})
	in.Lines[1].Amount = amount("30")
	updated, err := svc.UpdateDraft(ctx, draft.ID, in)
	require.NoError(t, err)
	require.Equal(t, juneID, updated.PeriodID)
	require.Len(t, repo.vouchers[draft.ID].Lines, 3)
	require.Equal(t, actor, updated.CreatedBy)

	require.NoError(t, svc.DeleteDraft(ctx, draft.ID))
	_, err = svc.Get(ctx, draft.ID)
	require.ErrorIs(t, err, shared.ErrVoucherNotFound)
}

func postSale(t *testing.T, svc *Service, day time.Time, amt string) Voucher {
	t.Helper()
	ctx := context.Background()
	d, err := svc.CreateDraft(ctx, cashSale(day, amt, amt), actor)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, d.ID, actor)
	require.NoError(t, err)
	v, err := svc.ApproveAndPost(ctx, d.ID, actor, "")
	require.NoError(t, err)
	return v
}

func TestReversalDraftFlipsLines(t *testing.T) {
	svc, repo, queue := fixture(t)
	ctx := context.Background()
	repo.parties[9] = parties.Party{ID: 9, Name: "Acme", IsActive: true}
	in := cashSale(date(2024, 5, 10), "100", "100")
	in.PartyID = ptr(int64(9))
	d, err := svc.CreateDraft(ctx, in, actor)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, d.ID, actor)
	require.NoError(t, err)
	original, err := svc.ApproveAndPost(ctx, d.ID, actor, "")
	require.NoError(t, err)

	rev, err := svc.CreateReversingVoucher(ctx, original.ID, actor, ReverseInput{})
	require.NoError(t, err)
	require.Equal(t, StatusDraft, rev.Status)
	require.Equal(t, date(2024, 6, 15), rev.Date)
	require.Equal(t, juneID, rev.PeriodID)
	require.Equal(t, "Reversal of Voucher: SA-2024Q2-0001. Original: Counter sale", rev.Narration)
	require.Equal(t, "Reversal of SA-2024Q2-0001", rev.Reference)
	require.Equal(t, original.ID, *rev.ReversalOf)
	require.Equal(t, int64(9), *rev.PartyID)
	require.Len(t, rev.Lines, 2)
	require.Equal(t, coa.SideCredit, rev.Lines[0].DrCr)
	require.Equal(t, coa.SideDebit, rev.Lines[1].DrCr)
	require.Equal(t, "Reversal - cash in", rev.Lines[0].Narration)
	require.Len(t, queue.ids, 1)

	trail, err := svc.Approvals(ctx, rev.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	require.Equal(t, ActionCommented, trail[0].Action)
}

func TestReversalPostImmediately(t *testing.T) {
	svc, _, queue := fixture(t)
	ctx := context.Background()
	original := postSale(t, svc, date(2024, 5, 10), "100")

	rev, err := svc.CreateReversingVoucher(ctx, original.ID, actor, ReverseInput{
		ReversalDate:    ptr(date(2024, 6, 1)),
		Type:            TypeGeneral,
		PostImmediately: true,
	})
	require.NoError(t, err)
	require.Equal(t, StatusPosted, rev.Status)
	require.Equal(t, TypeGeneral, rev.Type)
	require.Equal(t, "GE-2024Q2-0001", rev.NumberOrEmpty())
	require.Equal(t, []int64{original.ID, rev.ID}, queue.ids)

	// Net effect of the pair is zero on every account.
	net := map[int64]decimal.Decimal{}
	for _, v := range []Voucher{original, rev} {
		for _, l := range v.Lines {
			net[l.AccountID] = net[l.AccountID].Add(coa.NatureDebit.Signed(l.DrCr, l.Amount))
		}
	}
	for id, n := range net {
		require.True(t, n.IsZero(), "account %d nets to %s", id, n)
	}

	trail, err := svc.Approvals(ctx, rev.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	require.Equal(t, ActionApproved, trail[0].Action)
	require.Equal(t, StatusPosted, trail[0].ToStatus)
}

func TestReversalFailures(t *testing.T) {
	svc, repo, _ := fixture(t)
	ctx := context.Background()
	draft, err := svc.CreateDraft(ctx, cashSale(date(2024, 5, 10), "10", "10"), actor)
	require.NoError(t, err)
	_, err = svc.CreateReversingVoucher(ctx, draft.ID, actor, ReverseInput{})
	require.ErrorIs(t, err, shared.ErrInvalidState)

	original := postSale(t, svc, date(2024, 5, 11), "10")

	_, err = svc.CreateReversingVoucher(ctx, original.ID, actor, ReverseInput{ReversalDate: ptr(date(2024, 4, 15))})
	require.ErrorIs(t, err, shared.ErrPeriodLocked)

	_, err = svc.CreateReversingVoucher(ctx, original.ID, actor, ReverseInput{ReversalDate: ptr(date(2030, 1, 1))})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "reversal_date")

	cash := repo.accounts[cashID]
	cash.IsActive = false
	repo.accounts[cashID] = cash
	before := len(repo.vouchers)
	_, err = svc.CreateReversingVoucher(ctx, original.ID, actor, ReverseInput{})
	require.ErrorAs(t, err, &verr)
	require.Len(t, repo.vouchers, before)
}

func ptr[T any](v T) *T { return &v }

type statusLog []string

func (l *statusLog) VoucherTransition(status string) { *l = append(*l, status) }

func TestObserverSeesCommittedTransitionsOnly(t *testing.T) {
	svc, _, _ := fixture(t)
	var seen statusLog
	svc.WithObserver(&seen)
	ctx := context.Background()

	bad, err := svc.CreateDraft(ctx, cashSale(date(2024, 5, 10), "10", "9"), actor)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, bad.ID, actor)
	require.Error(t, err)
	require.Empty(t, seen)

	draft, err := svc.CreateDraft(ctx, cashSale(date(2024, 5, 10), "10", "10"), actor)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, draft.ID, actor)
	require.NoError(t, err)
	_, err = svc.Reject(ctx, draft.ID, actor, "wrong amount")
	require.NoError(t, err)
	_, err = svc.ApproveAndPost(ctx, draft.ID, actor, "")
	require.NoError(t, err)

	require.Equal(t, statusLog{"PENDING_APPROVAL", "REJECTED", "POSTED"}, seen)
}
